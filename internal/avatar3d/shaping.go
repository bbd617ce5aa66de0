package avatar3d

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/lipsync/internal/lipsync"
)

// ShapingConfig holds the amplitude shaping and smoothing tunables.
type ShapingConfig struct {
	// Gate is the volume below which the mouth is driven closed.
	Gate float64
	// MinOpen and AmpMax bound the eased vowel amplitude.
	MinOpen float64
	AmpMax  float64
	// Boost scales volume before easing.
	Boost float64
	// ConsScale and ConsMax derive the consonant amplitude from the vowel one.
	ConsScale float64
	ConsMax   float64
	// JawVowelBoost multiplies the jawOpen scalar on vowels.
	JawVowelBoost float64

	RiseVowel  float32
	DecayVowel float32
	RiseCons   float32
	DecayCons  float32
	BlinkRate  float32

	// Caps limit individual targets by ARKit name. Unlisted targets cap at 1.
	Caps map[string]float32
}

func DefaultShapingConfig() ShapingConfig {
	return ShapingConfig{
		Gate:          0.06,
		MinOpen:       0.05,
		AmpMax:        0.70,
		Boost:         1.3,
		ConsScale:     0.60,
		ConsMax:       0.35,
		JawVowelBoost: 1.02,
		RiseVowel:     0.12,
		DecayVowel:    0.08,
		RiseCons:      0.18,
		DecayCons:     0.12,
		BlinkRate:     0.5,
		Caps: map[string]float32{
			"jawOpen":     0.55,
			"mouthFunnel": 0.6,
			"mouthPucker": 0.6,
			"tongueOut":   0.3,
		},
	}
}

// BlinkFlags are the eye states requested for one frame.
type BlinkFlags struct {
	Blink     bool
	WinkLeft  bool
	WinkRight bool
}

// Target is a desired weight for one blend shape and the rate at which the
// smoother should approach it.
type Target struct {
	Index   BlendshapeIndex
	Desired float32
	Rate    float32
}

// Frame is the shaping policy's output for one animation frame.
type Frame struct {
	Viseme lipsync.Viseme
	Class  lipsync.ArticulatoryClass
	Volume float64
	Gated  bool
	Mouth  []Target
	Eyes   [2]Target
}

// Targets returns the mouth and eye targets together.
func (f Frame) Targets() []Target {
	out := make([]Target, 0, len(f.Mouth)+len(f.Eyes))
	out = append(out, f.Mouth...)
	return append(out, f.Eyes[:]...)
}

// DesiredWeights maps every mouth target and both blink targets to the
// weight the frame wants.
func (f Frame) DesiredWeights() map[string]float32 {
	out := make(map[string]float32, len(f.Mouth)+len(f.Eyes))
	for _, t := range f.Targets() {
		out[t.Index.String()] = t.Desired
	}
	return out
}

// ShapingPolicy converts lipsync snapshots into per-target blend weights.
// It is safe to swap the config while another goroutine shapes frames.
type ShapingPolicy struct {
	mu   sync.RWMutex
	cfg  ShapingConfig
	caps [BlendshapeCount]float32
}

func NewShapingPolicy(cfg ShapingConfig) *ShapingPolicy {
	p := &ShapingPolicy{}
	p.SetConfig(cfg)
	return p
}

// SetConfig replaces the tunables. Cap names that are not ARKit shapes are
// ignored.
func (p *ShapingPolicy) SetConfig(cfg ShapingConfig) {
	var caps [BlendshapeCount]float32
	for i := range caps {
		caps[i] = 1
	}
	for name, c := range cfg.Caps {
		if idx, ok := BlendshapeIndexFromName(name); ok {
			caps[idx] = mgl32.Clamp(c, 0, 1)
		}
	}

	p.mu.Lock()
	p.cfg = cfg
	p.caps = caps
	p.mu.Unlock()
}

func (p *ShapingPolicy) Config() ShapingConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Amplitudes returns the vowel and consonant scalars for a volume.
func (p *ShapingPolicy) Amplitudes(volume float64) (vowel, cons float64) {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()
	return amplitudes(cfg, volume)
}

func amplitudes(cfg ShapingConfig, volume float64) (vowel, cons float64) {
	boosted := math.Min(1, volume*cfg.Boost)
	if boosted < 0 {
		boosted = 0
	}
	eased := boosted * boosted * (3 - 2*boosted)
	vowel = cfg.MinOpen + (cfg.AmpMax-cfg.MinOpen)*eased
	cons = math.Min(cfg.ConsMax, vowel*cfg.ConsScale)
	return vowel, cons
}

// Shape produces the frame for snapshot s. Mouth targets fall to zero when
// the frame is silent or below the gate; blink targets follow flags alone.
func (p *ShapingPolicy) Shape(s lipsync.Snapshot, flags BlinkFlags) Frame {
	p.mu.RLock()
	cfg := p.cfg
	caps := p.caps
	p.mu.RUnlock()

	rise, decay := cfg.RiseCons, cfg.DecayCons
	if s.Class == lipsync.ClassVowel {
		rise, decay = cfg.RiseVowel, cfg.DecayVowel
	}

	f := Frame{
		Viseme: s.Viseme,
		Class:  s.Class,
		Volume: s.Volume,
		Mouth:  make([]Target, len(mouthTargets)),
	}

	f.Eyes[0] = Target{Index: EyeBlinkLeft, Rate: cfg.BlinkRate}
	f.Eyes[1] = Target{Index: EyeBlinkRight, Rate: cfg.BlinkRate}
	if flags.Blink || flags.WinkLeft {
		f.Eyes[0].Desired = 1
	}
	if flags.Blink || flags.WinkRight {
		f.Eyes[1].Desired = 1
	}

	var desired [BlendshapeCount]float32
	var active [BlendshapeCount]bool

	if s.Viseme == lipsync.VisemeSil || s.Volume < cfg.Gate {
		f.Gated = true
	} else {
		vowelAmp, consAmp := amplitudes(cfg, s.Volume)
		vowel := s.Viseme.IsVowel()
		for _, m := range VisemeBlendshapes(s.Viseme) {
			scalar := consAmp
			if vowel {
				scalar = vowelAmp
				if m.Index == JawOpen {
					scalar = math.Min(1, scalar*cfg.JawVowelBoost)
				}
			}
			w := float32(float64(m.Weight) * scalar)
			desired[m.Index] = mgl32.Clamp(w, 0, caps[m.Index])
			active[m.Index] = true
		}
	}

	for i, idx := range mouthTargets {
		rate := decay
		if active[idx] {
			rate = rise
		}
		f.Mouth[i] = Target{Index: idx, Desired: desired[idx], Rate: rate}
	}
	return f
}
