// Package audio decodes speech clips and turns their samples into the byte
// magnitude spectra the lipsync engine consumes.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidFormat       = errors.New("invalid audio format")
	ErrUnsupportedChannels = errors.New("unsupported channel count")
	ErrEmptyClip           = errors.New("audio clip has no samples")
)

// AudioFormat represents audio encoding format
type AudioFormat string

const (
	FormatWAV AudioFormat = "wav"
	FormatPCM AudioFormat = "pcm"
)

// Clip is a decoded mono clip with samples normalized to [-1, 1].
type Clip struct {
	Samples    []float64   `json:"-"`
	SampleRate int         `json:"sample_rate"`
	BitDepth   int         `json:"bit_depth"`
	Channels   int         `json:"channels"` // channel count of the source before mixdown
	Format     AudioFormat `json:"format"`
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// AnalyserConfig holds the spectrum analyser settings. The defaults match a
// browser AnalyserNode.
type AnalyserConfig struct {
	FFTSize     int     `json:"fft_size"`
	Smoothing   float64 `json:"smoothing"`    // 0-1, blend with the previous frame
	MinDecibels float64 `json:"min_decibels"` // maps to byte 0
	MaxDecibels float64 `json:"max_decibels"` // maps to byte 255
}

// DefaultAnalyserConfig returns sensible defaults
func DefaultAnalyserConfig() AnalyserConfig {
	return AnalyserConfig{
		FFTSize:     1024,
		Smoothing:   0.5,
		MinDecibels: -100,
		MaxDecibels: -30,
	}
}

// VADResult represents the result of voice activity detection
type VADResult struct {
	IsSpeech   bool    `json:"is_speech"`
	Confidence float64 `json:"confidence"`
	RMS        float64 `json:"rms"`
}
