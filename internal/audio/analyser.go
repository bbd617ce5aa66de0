package audio

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectrumAnalyser keeps the most recent FFTSize samples of a stream and
// produces byte magnitude spectra from them on demand. It satisfies
// lipsync.Analyser.
type SpectrumAnalyser struct {
	mu         sync.Mutex
	cfg        AnalyserConfig
	sampleRate float64

	fft    *fourier.FFT
	window []float64
	ring   []float64
	head   int

	frame    []float64    // windowed samples, reused
	coeffs   []complex128 // FFT output, reused
	smoothed []float64    // previous smoothed magnitudes
}

// NewSpectrumAnalyser creates an analyser for a stream at sampleRate Hz.
// FFTSize must be a power of two between 32 and 32768.
func NewSpectrumAnalyser(sampleRate float64, cfg AnalyserConfig) (*SpectrumAnalyser, error) {
	n := cfg.FFTSize
	if n < 32 || n > 32768 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft size %d: must be a power of two in [32, 32768]", n)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %v: %w", sampleRate, ErrInvalidFormat)
	}
	if cfg.Smoothing < 0 || cfg.Smoothing > 1 {
		return nil, fmt.Errorf("smoothing %v: must be in [0, 1]", cfg.Smoothing)
	}
	if cfg.MaxDecibels <= cfg.MinDecibels {
		return nil, fmt.Errorf("decibel range [%v, %v] is empty", cfg.MinDecibels, cfg.MaxDecibels)
	}

	return &SpectrumAnalyser{
		cfg:        cfg,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(n),
		window:     blackman(n),
		ring:       make([]float64, n),
		frame:      make([]float64, n),
		coeffs:     make([]complex128, n/2+1),
		smoothed:   make([]float64, n/2),
	}, nil
}

func (a *SpectrumAnalyser) SampleRate() float64 { return a.sampleRate }
func (a *SpectrumAnalyser) FFTSize() int        { return a.cfg.FFTSize }

// FrequencyBinCount is the number of bins ByteFrequencyData fills.
func (a *SpectrumAnalyser) FrequencyBinCount() int { return a.cfg.FFTSize / 2 }

// Write appends samples to the analysis window, dropping the oldest.
func (a *SpectrumAnalyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	if len(samples) >= n {
		copy(a.ring, samples[len(samples)-n:])
		a.head = 0
		return
	}
	for _, s := range samples {
		a.ring[a.head] = s
		a.head = (a.head + 1) % n
	}
}

// Reset clears buffered samples and smoothing state.
func (a *SpectrumAnalyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.ring {
		a.ring[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.head = 0
}

// ByteFrequencyData computes the current spectrum into dst. Each call
// advances the smoothing state, so it should be called once per frame.
func (a *SpectrumAnalyser) ByteFrequencyData(dst []uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyse()

	scale := 255 / (a.cfg.MaxDecibels - a.cfg.MinDecibels)
	for i := range dst {
		if i >= len(a.smoothed) {
			dst[i] = 0
			continue
		}
		db := math.Inf(-1)
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}
		v := (db - a.cfg.MinDecibels) * scale
		switch {
		case v <= 0 || math.IsNaN(v):
			dst[i] = 0
		case v >= 255:
			dst[i] = 255
		default:
			dst[i] = uint8(v)
		}
	}
}

// analyse windows the ring contents oldest first, transforms them, and
// blends the normalized magnitudes into the smoothing state.
func (a *SpectrumAnalyser) analyse() {
	n := len(a.ring)
	for i := 0; i < n; i++ {
		a.frame[i] = a.ring[(a.head+i)%n] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	tau := a.cfg.Smoothing
	for k := range a.smoothed {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
	}
}

// blackman returns the window used by browser analysers (alpha 0.16).
func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
