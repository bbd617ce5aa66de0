package lipsync

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisemeClasses(t *testing.T) {
	tests := []struct {
		viseme Viseme
		class  ArticulatoryClass
	}{
		{VisemeSil, ClassSilence},
		{VisemePP, ClassPlosive},
		{VisemeDD, ClassPlosive},
		{VisemeKK, ClassPlosive},
		{VisemeNN, ClassPlosive},
		{VisemeFF, ClassFricative},
		{VisemeTH, ClassFricative},
		{VisemeCH, ClassFricative},
		{VisemeSS, ClassFricative},
		{VisemeRR, ClassFricative},
		{VisemeAA, ClassVowel},
		{VisemeE, ClassVowel},
		{VisemeI, ClassVowel},
		{VisemeO, ClassVowel},
		{VisemeU, ClassVowel},
	}
	require.Len(t, tests, int(VisemeCount))

	for _, tt := range tests {
		t.Run(tt.viseme.String(), func(t *testing.T) {
			assert.Equal(t, tt.class, tt.viseme.Class())
		})
	}
	assert.Equal(t, ClassSilence, Viseme(99).Class())
}

func TestVisemeNames(t *testing.T) {
	assert.Equal(t, "kk", VisemeKK.String())
	assert.Equal(t, "viseme_aa", VisemeAA.TargetName())

	v, ok := ParseViseme("nn")
	assert.True(t, ok)
	assert.Equal(t, VisemeNN, v)

	_, ok = ParseViseme("zz")
	assert.False(t, ok)
}

func TestScoresBestTieBreak(t *testing.T) {
	var s Scores
	assert.Equal(t, VisemeSil, s.Best(), "all zero resolves to silence")

	s[VisemeI] = 0.7
	s[VisemeU] = 0.7
	assert.Equal(t, VisemeI, s.Best(), "earlier viseme wins ties")
}

// PP is scored 1.0 and DD 1.4 in the 4-5 kHz range when band 7 is bright.
// PP's hysteresis (1.3) must not be enough to keep it.
func TestClassifyDDBeatsPPWithHysteresis(t *testing.T) {
	cur := FrameFeatures{Volume: 0.5, Centroid: 4500}
	cur.Bands[6] = 0.3
	avg := FrameFeatures{Volume: 0.3, Centroid: 4500}

	raw := Score(cur, avg)
	assert.InDelta(t, 1.0, raw.Get(VisemePP), 1e-9)
	assert.InDelta(t, 1.4, raw.Get(VisemeDD), 1e-9)

	fresh := NewClassifier()
	assert.Equal(t, VisemeDD, fresh.Classify(cur, avg).Viseme)

	c := NewClassifier()
	c.viseme = VisemePP
	got := c.Classify(cur, avg)
	assert.InDelta(t, 1.3, got.Adjusted.Get(VisemePP), 1e-9)
	assert.Equal(t, VisemeDD, got.Viseme)
	assert.Equal(t, ClassPlosive, got.Class)
	assert.Equal(t, VisemeDD, c.Viseme())
}

func TestClassifyHysteresisBreaksTie(t *testing.T) {
	// I and U both score 0.7 on these averaged bands.
	tie := FrameFeatures{Volume: 0.3, Centroid: 500}
	copy(tie.Bands[:], []float64{0.1, 0.0, 0.5, 0.1, 0.1})
	cur := FrameFeatures{Volume: 0.5, Centroid: 500}

	raw := Score(cur, tie)
	require.InDelta(t, 0.7, raw.Get(VisemeI), 1e-9)
	require.InDelta(t, 0.7, raw.Get(VisemeU), 1e-9)

	// Only U scores on these bands.
	onlyU := FrameFeatures{Volume: 0.3, Centroid: 500}
	copy(onlyU.Bands[:], []float64{0.4, 0.5, 0.12, 0.12, 0.05})

	biased := NewClassifier()
	require.Equal(t, VisemeU, biased.Classify(cur, onlyU).Viseme)
	assert.Equal(t, VisemeU, biased.Classify(cur, tie).Viseme)

	unbiased := NewClassifier()
	assert.Equal(t, VisemeI, unbiased.Classify(cur, tie).Viseme)
}

func TestClassifySilencePrecedence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	// Centroids outside (4000, 5000], where PP and DD carry scores above 1.
	centroids := []float64{0, 500, 1000, 2500, 4000, 5500, 6500, 7500, 8000, 9000}

	randomFrame := func() FrameFeatures {
		var f FrameFeatures
		for i := range f.Bands {
			f.Bands[i] = rng.Float64()
			f.DeltaBands[i] = rng.Float64()*2 - 1
		}
		f.Volume = rng.Float64() * 0.2
		f.Centroid = centroids[rng.Intn(len(centroids))]
		return f
	}

	for i := 0; i < 2000; i++ {
		cur, avg := randomFrame(), randomFrame()
		got := NewClassifier().Classify(cur, avg)
		require.Equal(t, VisemeSil, got.Viseme, "iteration %d: cur=%+v avg=%+v", i, cur, avg)
		require.Equal(t, ClassSilence, got.Class)
	}
}

func TestClassifyEmptyHistoryIsSilence(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(FrameFeatures{}, NewHistory(8).Average())
	assert.Equal(t, VisemeSil, got.Viseme)
	assert.InDelta(t, 1.0, got.Raw.Get(VisemeSil), 1e-9)
}

func TestScorePlosiveTrend(t *testing.T) {
	cur := FrameFeatures{Volume: 0.1, Centroid: 3000}
	avg := FrameFeatures{Volume: 0.15, Centroid: 500}

	s := Score(cur, avg)
	// -0.5 flat volume, +0.2 quiet average, +0.2 centroid jump.
	assert.InDelta(t, -0.1, s.Get(VisemePP), 1e-9)
	assert.InDelta(t, -0.1, s.Get(VisemeDD), 1e-9)
	assert.InDelta(t, -0.1, s.Get(VisemeKK), 1e-9)
	// nn also picks up the 1-4 kHz centroid band.
	assert.InDelta(t, 0.5, s.Get(VisemeNN), 1e-9)
	assert.Zero(t, s.Get(VisemeFF))
}

func TestScoreCentroidBands(t *testing.T) {
	tests := []struct {
		name     string
		centroid float64
		viseme   Viseme
		want     float64
	}{
		{"nn below 4 kHz", 2000, VisemeNN, 0.6},
		{"PP 4-5 kHz", 4500, VisemePP, 1.0},
		{"kk 5-7 kHz", 6000, VisemeKK, 0.6},
		{"DD above 7 kHz", 7500, VisemeDD, 0.6},
		{"nothing at 8 kHz", 8000, VisemeDD, 0},
		{"nothing at 1 kHz", 1000, VisemeNN, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Rising volume and average loudness cancel the plosive trend terms.
			cur := FrameFeatures{Volume: 0.6, Centroid: tt.centroid}
			avg := FrameFeatures{Volume: 0.4, Centroid: tt.centroid}
			s := Score(cur, avg)
			assert.InDelta(t, tt.want, s.Get(tt.viseme), 1e-9)
		})
	}
}

func TestScoreFricativeAssigns(t *testing.T) {
	// 8 kHz sits above the centroid bands, so no plosive competes.
	cur := FrameFeatures{Volume: 0.6, Centroid: 8000}
	cur.Bands[6] = 0.5
	avg := FrameFeatures{Volume: 0.4, Centroid: 5500}
	avg.Bands[6] = 0.35

	s := Score(cur, avg)
	assert.InDelta(t, 0.7, s.Get(VisemeFF), 1e-9)
	assert.Equal(t, VisemeFF, s.Best())
}

func TestScoreVowelOverwriteOrder(t *testing.T) {
	tests := []struct {
		name  string
		bands []float64
		want  map[Viseme]float64
	}{
		{
			name:  "open aa with rising F1",
			bands: []float64{0.2, 0.3, 0.6, 1.0, 1.0},
			want:  map[Viseme]float64{VisemeAA: 1.0, VisemeU: 0.7, VisemeO: 0.7, VisemeI: 0},
		},
		{
			name:  "E on falling bands",
			bands: []float64{0.5, 0.6, 0.4, 0.2, 0.1},
			want:  map[Viseme]float64{VisemeE: 1.0, VisemeO: 0, VisemeU: 0.7},
		},
		{
			name:  "I overwrite on weak b3 strong b4",
			bands: []float64{0.9, 0.2, 0.15, 0.4, 0.5},
			want:  map[Viseme]float64{VisemeI: 0.7, VisemeAA: 0.8, VisemeU: 0},
		},
		{
			name:  "O overwrite lowers the flat O",
			bands: []float64{0.3, 0.3, 0.3, 0.3, 0.3},
			want:  map[Viseme]float64{VisemeO: 0.7, VisemeU: 0.7},
		},
		{
			name:  "guard skips quiet mid bands",
			bands: []float64{0.5, 0.5, 0.1, 0.1, 0.5},
			want:  map[Viseme]float64{VisemeU: 0, VisemeO: 0, VisemeE: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg := FrameFeatures{Volume: 0.4, Centroid: 500}
			copy(avg.Bands[:], tt.bands)
			cur := FrameFeatures{Volume: 0.6, Centroid: 500}

			s := Score(cur, avg)
			for v, want := range tt.want {
				assert.InDelta(t, want, s.Get(v), 1e-9, v.String())
			}
		})
	}
}

func TestScoreVowelsNeedLowCentroid(t *testing.T) {
	avg := FrameFeatures{Volume: 0.4, Centroid: 500}
	copy(avg.Bands[:], []float64{0.5, 0.6, 0.4, 0.2, 0.1})
	cur := FrameFeatures{Volume: 0.6, Centroid: 6000}

	s := Score(cur, avg)
	assert.Zero(t, s.Get(VisemeE))
}
