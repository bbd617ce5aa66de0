package lipsync

import (
	"math"
)

// Scoring policy. These are fixed; they are not tunable per call.
const (
	silenceVolume = 0.2

	plosiveFlatVolume  = 0.01
	plosiveFlatPenalty = 0.5
	plosiveQuietBonus  = 0.2
	plosiveRiseBonus   = 0.2
	centroidJump       = 1000.0

	centroidBandLow  = 1000.0
	centroidBandHigh = 8000.0

	fricativeScore = 0.7

	vowelMinVolume   = 0.1
	vowelMaxCentroid = 6000.0

	// HysteresisFactor multiplies the previous viseme's score before
	// selection so the output does not flicker between near-equal shapes.
	HysteresisFactor = 1.3
)

// Scores holds one score per viseme, indexed by Viseme.
type Scores [VisemeCount]float64

// Get returns the score for v.
func (s *Scores) Get(v Viseme) float64 {
	return s[v]
}

// Best returns the highest-scoring viseme. Ties go to the viseme that comes
// first in enumeration order, so silence wins against zero-scored shapes.
func (s *Scores) Best() Viseme {
	best := VisemeSil
	max := math.Inf(-1)
	for i, score := range s {
		if score > max {
			max = score
			best = Viseme(i)
		}
	}
	return best
}

// scoreInput is what every rule sees for one tick.
type scoreInput struct {
	cur       FrameFeatures
	avg       FrameFeatures
	dVolume   float64
	dCentroid float64
}

// scoreRule adds to or overwrites score slots. Rules run in slice order and
// later rules deliberately overwrite earlier ones.
type scoreRule struct {
	name  string
	apply func(in *scoreInput, s *Scores)
}

var scoreRules = []scoreRule{
	{name: "silence", apply: scoreSilence},
	{name: "plosive-trend", apply: scorePlosiveTrend},
	{name: "centroid-band", apply: scoreCentroidBand},
	{name: "fricative", apply: scoreFricative},
	{name: "vowel", apply: scoreVowels},
}

func scoreSilence(in *scoreInput, s *Scores) {
	if in.avg.Volume < silenceVolume && in.cur.Volume < silenceVolume {
		s[VisemeSil] = 1.0
	}
}

func scorePlosiveTrend(in *scoreInput, s *Scores) {
	for _, v := range Visemes() {
		if v.Class() != ClassPlosive {
			continue
		}
		if in.dVolume < plosiveFlatVolume {
			s[v] -= plosiveFlatPenalty
		}
		if in.avg.Volume < silenceVolume {
			s[v] += plosiveQuietBonus
		}
		if in.dCentroid > centroidJump {
			s[v] += plosiveRiseBonus
		}
	}
}

func scoreCentroidBand(in *scoreInput, s *Scores) {
	c := in.cur.Centroid
	if c <= centroidBandLow || c >= centroidBandHigh {
		return
	}
	switch {
	case c > 7000:
		s[VisemeDD] += 0.6
	case c > 5000:
		s[VisemeKK] += 0.6
	case c > 4000:
		s[VisemePP] += 1.0
		// Bright frames in the PP range read as DD and outscore PP even
		// after PP's hysteresis bonus.
		if in.cur.Bands[6] > 0.25 && c < 6000 {
			s[VisemeDD] += 1.4
		}
	default:
		s[VisemeNN] += 0.6
	}
}

func scoreFricative(in *scoreInput, s *Scores) {
	if in.dCentroid > centroidJump && in.cur.Centroid > 6000 && in.avg.Centroid > 5000 &&
		in.cur.Bands[6] > 0.4 && in.avg.Bands[6] > 0.3 {
		s[VisemeFF] = fricativeScore
	}
}

// vowelRules read the averaged low bands b1..b5 and run in order; each
// assignment overwrites the slot.
var vowelRules = []func(b [5]float64, s *Scores){
	func(b [5]float64, s *Scores) {
		if b[3] > b[2] {
			s[VisemeAA] = 0.8
			if b[2] > b[1] {
				s[VisemeAA] += 0.2
			}
		}
	},
	func(b [5]float64, s *Scores) {
		if b[2] > b[1] && b[2] > b[3] {
			s[VisemeI] = 0.7
		}
	},
	func(b [5]float64, s *Scores) {
		if math.Abs(b[0]-b[1]) < 0.25 {
			s[VisemeU] = 0.7
		}
	},
	func(b [5]float64, s *Scores) {
		gap := math.Max(math.Abs(b[1]-b[2]), math.Max(math.Abs(b[1]-b[3]), math.Abs(b[2]-b[3])))
		if gap < 0.25 {
			s[VisemeO] = 0.9
		}
	},
	func(b [5]float64, s *Scores) {
		if b[1] > b[2] && b[2] > b[3] {
			s[VisemeE] = 1.0
		}
	},
	func(b [5]float64, s *Scores) {
		if b[2] < 0.2 && b[3] > 0.3 {
			s[VisemeI] = 0.7
		}
	},
	func(b [5]float64, s *Scores) {
		if b[2] > 0.25 && b[4] > 0.25 {
			s[VisemeO] = 0.7
		}
	},
	func(b [5]float64, s *Scores) {
		if b[2] < 0.15 && b[4] < 0.15 {
			s[VisemeU] = 0.7
		}
	},
}

func scoreVowels(in *scoreInput, s *Scores) {
	if in.avg.Volume <= vowelMinVolume || in.avg.Centroid >= vowelMaxCentroid || in.cur.Centroid >= vowelMaxCentroid {
		return
	}
	var b [5]float64
	copy(b[:], in.avg.Bands[:5])
	if b[2] <= 0.1 && b[3] <= 0.1 {
		return
	}
	for _, r := range vowelRules {
		r(b, s)
	}
}

// Score evaluates the rule table for one frame against the history average.
// The result has no hysteresis applied.
func Score(cur, avg FrameFeatures) Scores {
	in := &scoreInput{
		cur:       cur,
		avg:       avg,
		dVolume:   cur.Volume - avg.Volume,
		dCentroid: cur.Centroid - avg.Centroid,
	}
	var s Scores
	for _, r := range scoreRules {
		r.apply(in, &s)
	}
	return s
}

// Classification is the outcome of one classifier tick.
type Classification struct {
	Viseme   Viseme
	Class    ArticulatoryClass
	Raw      Scores
	Adjusted Scores
}

// Classifier holds the viseme chosen on the previous tick and biases the
// next choice toward it.
type Classifier struct {
	viseme Viseme
}

// NewClassifier returns a classifier in the silence state.
func NewClassifier() *Classifier {
	return &Classifier{viseme: VisemeSil}
}

// Viseme returns the current viseme.
func (c *Classifier) Viseme() Viseme {
	return c.viseme
}

// Class returns the class of the current viseme.
func (c *Classifier) Class() ArticulatoryClass {
	return c.viseme.Class()
}

// Reset returns the classifier to silence.
func (c *Classifier) Reset() {
	c.viseme = VisemeSil
}

// Classify scores cur against avg, applies hysteresis toward the previous
// viseme, and advances the state to the winner.
func (c *Classifier) Classify(cur, avg FrameFeatures) Classification {
	raw := Score(cur, avg)
	adjusted := raw
	adjusted[c.viseme] *= HysteresisFactor

	c.viseme = adjusted.Best()
	return Classification{
		Viseme:   c.viseme,
		Class:    c.viseme.Class(),
		Raw:      raw,
		Adjusted: adjusted,
	}
}
