package avatar3d

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultExpression is the preset used at startup and after a reset.
const DefaultExpression = "default"

// ExpressionRate is the per-frame approach rate for expression targets.
const ExpressionRate float32 = 0.1

var expressionPresets = map[string]map[string]float32{
	"default": {
		"browInnerUp": 0.1, "eyeSquintLeft": 0.22, "eyeSquintRight": 0.24,
		"noseSneerLeft": 0.08, "noseSneerRight": 0.07,
		"mouthPressLeft": 0.02, "mouthPressRight": 0.02,
	},
	"smile": {
		"browInnerUp": 0.12, "eyeSquintLeft": 0.24, "eyeSquintRight": 0.26,
		"noseSneerLeft": 0.08, "noseSneerRight": 0.07,
		"mouthPressLeft": 0.02, "mouthPressRight": 0.02,
	},
	"funnyFace": {
		"jawLeft": 0.4, "mouthPucker": 0.35, "noseSneerLeft": 0.5, "noseSneerRight": 0.2,
		"mouthLeft": 0.6, "eyeLookUpLeft": 0.6, "eyeLookUpRight": 0.6, "cheekPuff": 0.5,
		"mouthDimpleLeft": 0.3, "mouthRollLower": 0.25, "mouthSmileLeft": 0.28, "mouthSmileRight": 0.28,
	},
	"sad": {
		"mouthFrownLeft": 0.6, "mouthFrownRight": 0.6, "mouthShrugLower": 0.5, "browInnerUp": 0.28,
		"eyeSquintLeft": 0.45, "eyeSquintRight": 0.47, "eyeLookDownLeft": 0.35, "eyeLookDownRight": 0.35,
		"jawForward": 0.6,
	},
	"surprised": {
		"eyeWideLeft": 0.35, "eyeWideRight": 0.35, "jawOpen": 0.22, "mouthFunnel": 0.6, "browInnerUp": 0.6,
	},
	"angry": {
		"browDownLeft": 0.65, "browDownRight": 0.65, "eyeSquintLeft": 0.7, "eyeSquintRight": 0.7,
		"jawForward": 0.6, "jawLeft": 0.6, "mouthShrugLower": 0.6, "noseSneerLeft": 0.7,
		"noseSneerRight": 0.35, "eyeLookDownLeft": 0.12, "eyeLookDownRight": 0.12,
		"cheekSquintLeft": 0.7, "cheekSquintRight": 0.7, "mouthClose": 0.18, "mouthFunnel": 0.45,
		"mouthDimpleRight": 0.7,
	},
	"crazy": {
		"browInnerUp": 0.6, "jawForward": 0.7, "noseSneerLeft": 0.38, "noseSneerRight": 0.34,
		"eyeLookDownLeft": 0.28, "eyeLookUpRight": 0.3, "eyeLookInLeft": 0.7, "eyeLookInRight": 0.7,
		"jawOpen": 0.65, "mouthDimpleLeft": 0.6, "mouthDimpleRight": 0.6,
		"mouthStretchLeft": 0.2, "mouthStretchRight": 0.2,
		"mouthSmileLeft": 0.38, "mouthSmileRight": 0.32, "tongueOut": 0.6,
	},
}

// expressionTargets is every non-mouth shape some preset touches. Switching
// presets drives the ones the new preset omits back to zero.
var expressionTargets = func() []BlendshapeIndex {
	var seen [BlendshapeCount]bool
	for _, preset := range expressionPresets {
		for name := range preset {
			idx, ok := BlendshapeIndexFromName(name)
			if ok && !IsMouthTarget(idx) && idx != EyeBlinkLeft && idx != EyeBlinkRight {
				seen[idx] = true
			}
		}
	}
	var out []BlendshapeIndex
	for i, ok := range seen {
		if ok {
			out = append(out, BlendshapeIndex(i))
		}
	}
	return out
}()

// Expressions lists the preset names in sorted order.
func Expressions() []string {
	names := make([]string, 0, len(expressionPresets))
	for name := range expressionPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpressionController holds the active facial expression. Mouth shapes are
// left to the shaping policy.
type ExpressionController struct {
	mu      sync.RWMutex
	current string
	weights BlendshapeWeights
}

func NewExpressionController() *ExpressionController {
	ec := &ExpressionController{}
	ec.Reset()
	return ec
}

// Set switches to the named preset.
func (ec *ExpressionController) Set(name string) error {
	preset, ok := expressionPresets[name]
	if !ok {
		return fmt.Errorf("unknown expression %q", name)
	}

	var w BlendshapeWeights
	for target, v := range preset {
		if idx, ok := BlendshapeIndexFromName(target); ok {
			w.Set(idx, v)
		}
	}

	ec.mu.Lock()
	ec.current = name
	ec.weights = w
	ec.mu.Unlock()
	return nil
}

// Reset returns to the default expression.
func (ec *ExpressionController) Reset() {
	_ = ec.Set(DefaultExpression)
}

func (ec *ExpressionController) Current() string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.current
}

// Targets returns the expression's desired weights for every non-mouth
// shape any preset uses.
func (ec *ExpressionController) Targets() []Target {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make([]Target, len(expressionTargets))
	for i, idx := range expressionTargets {
		out[i] = Target{Index: idx, Desired: ec.weights.Get(idx), Rate: ExpressionRate}
	}
	return out
}
