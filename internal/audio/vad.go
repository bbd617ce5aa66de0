package audio

import (
	"math"
	"sync"
	"time"
)

// VAD implements Voice Activity Detection using RMS energy analysis.
// It is clocked by the audio it sees, not the wall clock.
type VAD struct {
	config *VADConfig
	mu     sync.RWMutex

	// State
	isActive bool
	silence  time.Duration

	// Smoothing
	energyHistory []float64
	historyIndex  int
}

// VADConfig holds VAD configuration
type VADConfig struct {
	Threshold       float64 `json:"threshold"`        // Energy threshold (0-1), default 0.01
	SmoothingFrames int     `json:"smoothing_frames"` // Number of frames to smooth, default 5
	MaxSilenceMs    int     `json:"max_silence_ms"`   // Max silence before end, default 500
}

// DefaultVADConfig returns sensible defaults
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		Threshold:       0.01, // RMS threshold
		SmoothingFrames: 5,
		MaxSilenceMs:    500,
	}
}

// NewVAD creates a new VAD instance
func NewVAD(config *VADConfig) *VAD {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.SmoothingFrames < 1 {
		config.SmoothingFrames = 1
	}

	return &VAD{
		config:        config,
		energyHistory: make([]float64, config.SmoothingFrames),
	}
}

// Process analyzes one chunk of normalized samples covering dur.
func (v *VAD) Process(samples []float64, dur time.Duration) VADResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	rms := RMS(samples)

	v.energyHistory[v.historyIndex] = rms
	v.historyIndex = (v.historyIndex + 1) % len(v.energyHistory)

	smoothedRMS := v.calculateSmoothedRMS()

	isSpeech := smoothedRMS >= v.config.Threshold

	if isSpeech {
		v.isActive = true
		v.silence = 0
	} else if v.isActive {
		v.silence += dur
		if v.silence > time.Duration(v.config.MaxSilenceMs)*time.Millisecond {
			v.isActive = false
		} else {
			// Still in speech segment (within silence tolerance)
			isSpeech = true
		}
	}

	// Confidence grows with distance from the threshold
	confidence := 0.5
	if isSpeech {
		confidence = math.Min(1.0, 0.5+(smoothedRMS-v.config.Threshold)*10)
	} else {
		confidence = math.Max(0.0, 0.5-(v.config.Threshold-smoothedRMS)*10)
	}

	return VADResult{
		IsSpeech:   isSpeech,
		Confidence: confidence,
		RMS:        smoothedRMS,
	}
}

// RMS computes the root mean square of normalized samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// calculateSmoothedRMS returns the average RMS over the history window
func (v *VAD) calculateSmoothedRMS() float64 {
	var sum float64
	for _, e := range v.energyHistory {
		sum += e
	}
	return sum / float64(len(v.energyHistory))
}

// IsActive returns whether speech is currently detected
func (v *VAD) IsActive() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isActive
}

// Reset clears VAD state
func (v *VAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isActive = false
	v.silence = 0
	v.historyIndex = 0
	for i := range v.energyHistory {
		v.energyHistory[i] = 0
	}
}
