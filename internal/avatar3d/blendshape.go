// Package avatar3d turns lipsync snapshots into ARKit blend-shape weights:
// the shaping policy, blink scheduling, expression presets and the
// per-frame smoother that eases rendered weights toward their targets.
package avatar3d

import "github.com/go-gl/mathgl/mgl32"

// BlendshapeIndex addresses one of the 52 ARKit face blend shapes.
type BlendshapeIndex int

const (
	BrowDownLeft BlendshapeIndex = iota
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookInRight
	EyeLookOutLeft
	EyeLookOutRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	JawRight
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthRollUpper
	MouthShrugLower
	MouthShrugUpper
	MouthSmileLeft
	MouthSmileRight
	MouthStretchLeft
	MouthStretchRight
	MouthUpperUpLeft
	MouthUpperUpRight
	NoseSneerLeft
	NoseSneerRight
	TongueOut
	BlendshapeCount
)

var BlendshapeNames = [BlendshapeCount]string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
}

func (i BlendshapeIndex) String() string {
	if i < 0 || i >= BlendshapeCount {
		return "unknown"
	}
	return BlendshapeNames[i]
}

// BlendshapeIndexFromName resolves an ARKit name such as "jawOpen".
func BlendshapeIndexFromName(name string) (BlendshapeIndex, bool) {
	for i, n := range BlendshapeNames {
		if n == name {
			return BlendshapeIndex(i), true
		}
	}
	return -1, false
}

// BlendshapeWeights holds one weight in [0,1] per ARKit blend shape.
type BlendshapeWeights [BlendshapeCount]float32

func (w *BlendshapeWeights) Set(idx BlendshapeIndex, value float32) {
	w[idx] = mgl32.Clamp(value, 0, 1)
}

func (w *BlendshapeWeights) Get(idx BlendshapeIndex) float32 {
	return w[idx]
}

func (w *BlendshapeWeights) Reset() {
	*w = BlendshapeWeights{}
}

// Approach moves idx toward target by rate, the fraction of the remaining
// distance covered this step.
func (w *BlendshapeWeights) Approach(idx BlendshapeIndex, target, rate float32) {
	rate = mgl32.Clamp(rate, 0, 1)
	w.Set(idx, w[idx]+(target-w[idx])*rate)
}

// Map returns the non-zero weights keyed by ARKit name.
func (w *BlendshapeWeights) Map() map[string]float32 {
	out := make(map[string]float32)
	for i, v := range w {
		if v != 0 {
			out[BlendshapeNames[i]] = v
		}
	}
	return out
}

func (w *BlendshapeWeights) ToSlice() []float32 {
	return w[:]
}
