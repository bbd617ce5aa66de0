package lipsync

import "math"

// NumBands is the number of fixed frequency bands in a FrameFeatures.
const NumBands = 7

// Band is a half-open frequency range in Hz.
type Band struct {
	Start float64
	End   float64
}

// Bands are the analysis ranges, low to high: low energy, lower F1, mid F1,
// front F2, F2/F3, fricatives, high fricatives.
var Bands = [NumBands]Band{
	{Start: 50, End: 200},
	{Start: 200, End: 400},
	{Start: 400, End: 800},
	{Start: 800, End: 1500},
	{Start: 1500, End: 2500},
	{Start: 2500, End: 4000},
	{Start: 4000, End: 8000},
}

// FrameFeatures is the compact description of one analysis frame.
type FrameFeatures struct {
	Bands      [NumBands]float64 `json:"bands"`
	DeltaBands [NumBands]float64 `json:"delta_bands"`
	Volume     float64           `json:"volume"`
	Centroid   float64           `json:"centroid"`
}

// Extractor converts byte magnitude spectra into FrameFeatures and feeds the
// non-silent ones into a History.
type Extractor struct {
	binWidth float64
	ranges   [NumBands][2]int
	history  *History
}

// NewExtractor builds an extractor for spectra with binCount bins spaced
// sampleRate/fftSize Hz apart.
func NewExtractor(sampleRate float64, fftSize, binCount int, history *History) *Extractor {
	e := &Extractor{
		binWidth: sampleRate / float64(fftSize),
		history:  history,
	}
	last := binCount - 1
	for i, b := range Bands {
		start := roundHalfUp(b.Start / e.binWidth)
		end := roundHalfUp(b.End / e.binWidth)
		if end > last {
			end = last
		}
		e.ranges[i] = [2]int{start, end}
	}
	return e
}

// BinWidth returns the spacing between adjacent bins in Hz.
func (e *Extractor) BinWidth() float64 {
	return e.binWidth
}

// Extract computes features for one spectrum. Frames with any energy are
// pushed onto the history; silent frames are returned but not recorded.
func (e *Extractor) Extract(data []uint8) FrameFeatures {
	var f FrameFeatures

	for i, r := range e.ranges {
		f.Bands[i] = bandMean(data, r[0], r[1])
	}

	var sumAmp, weighted float64
	for i, v := range data {
		amp := float64(v) / 255
		sumAmp += amp
		weighted += float64(i) * e.binWidth * amp
	}
	if sumAmp > 0 {
		f.Centroid = weighted / sumAmp
	}

	f.Volume = mean(f.Bands[:])

	if prev, ok := e.history.Last(); ok {
		for i := range f.Bands {
			f.DeltaBands[i] = f.Bands[i] - prev.Bands[i]
		}
	}

	if sumAmp > 0 {
		e.history.Push(f)
	}
	return f
}

// bandMean averages the normalized magnitudes in data[start:end].
func bandMean(data []uint8, start, end int) float64 {
	if start < 0 {
		start = 0
	}
	if end > len(data) {
		end = len(data)
	}
	if end <= start {
		return 0
	}
	var sum float64
	for _, v := range data[start:end] {
		sum += float64(v)
	}
	return sum / float64(end-start) / 255
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
