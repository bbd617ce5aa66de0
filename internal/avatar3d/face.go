package avatar3d

import (
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// referenceFPS is the frame rate the per-frame rates are tuned for.
const referenceFPS = 60

// Face is the smoothed blend-shape state of one avatar. Each Apply moves the
// current weights toward the given targets, scaling the rates so motion
// speed does not depend on the caller's frame rate.
type Face struct {
	mu      sync.RWMutex
	weights BlendshapeWeights
}

func NewFace() *Face {
	return &Face{}
}

// Apply eases every target toward its desired weight over dt. A dt of zero
// applies each rate once, as a fixed 60 Hz step.
func (f *Face) Apply(dt time.Duration, targets ...[]Target) {
	f.mu.Lock()
	defer f.mu.Unlock()

	frames := dt.Seconds() * referenceFPS
	for _, group := range targets {
		for _, t := range group {
			f.weights.Approach(t.Index, t.Desired, compensate(t.Rate, frames))
		}
	}
}

// compensate converts a per-frame rate to the rate covering frames frames.
func compensate(rate float32, frames float64) float32 {
	if frames <= 0 {
		return rate
	}
	r := mgl32.Clamp(rate, 0, 1)
	return float32(1 - math.Pow(float64(1-r), frames))
}

func (f *Face) Weights() BlendshapeWeights {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.weights
}

func (f *Face) Get(idx BlendshapeIndex) float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.weights.Get(idx)
}

func (f *Face) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weights.Reset()
}
