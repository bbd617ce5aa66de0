package avatar3d

import "github.com/normanking/lipsync/internal/lipsync"

// BlendshapeMapping is one base weight contributed by a viseme. The shaping
// policy scales it by the frame's amplitude.
type BlendshapeMapping struct {
	Index  BlendshapeIndex
	Weight float32
}

var visemeToBlendshapes = [lipsync.VisemeCount][]BlendshapeMapping{
	lipsync.VisemeSil: {},
	lipsync.VisemePP:  {{MouthClose, 0.9}, {MouthPressLeft, 0.5}, {MouthPressRight, 0.5}, {MouthPucker, 0.3}},
	lipsync.VisemeFF:  {{MouthFunnel, 0.5}, {MouthRollLower, 0.6}, {MouthUpperUpLeft, 0.3}, {MouthUpperUpRight, 0.3}},
	lipsync.VisemeTH:  {{JawOpen, 0.3}, {TongueOut, 0.8}},
	lipsync.VisemeDD:  {{JawOpen, 0.4}, {MouthUpperUpLeft, 0.3}, {MouthUpperUpRight, 0.3}},
	lipsync.VisemeKK:  {{JawOpen, 0.5}, {MouthStretchLeft, 0.3}, {MouthStretchRight, 0.3}},
	lipsync.VisemeCH:  {{MouthFunnel, 0.7}, {MouthPucker, 0.5}, {JawOpen, 0.2}},
	lipsync.VisemeSS:  {{MouthStretchLeft, 0.6}, {MouthStretchRight, 0.6}, {JawOpen, 0.1}},
	lipsync.VisemeNN:  {{JawOpen, 0.3}, {MouthClose, 0.4}},
	lipsync.VisemeRR:  {{MouthPucker, 0.7}, {MouthFunnel, 0.4}, {JawOpen, 0.2}},
	lipsync.VisemeAA:  {{JawOpen, 1.0}, {MouthLowerDownLeft, 0.4}, {MouthLowerDownRight, 0.4}},
	lipsync.VisemeE:   {{JawOpen, 0.5}, {MouthSmileLeft, 0.5}, {MouthSmileRight, 0.5}, {MouthStretchLeft, 0.3}, {MouthStretchRight, 0.3}},
	lipsync.VisemeI:   {{JawOpen, 0.3}, {MouthSmileLeft, 0.7}, {MouthSmileRight, 0.7}},
	lipsync.VisemeO:   {{JawOpen, 0.7}, {MouthFunnel, 0.9}, {MouthPucker, 0.4}},
	lipsync.VisemeU:   {{JawOpen, 0.3}, {MouthPucker, 1.0}, {MouthFunnel, 0.6}},
}

// mouthTargets is every blend shape any viseme drives, in index order.
var mouthTargets = func() []BlendshapeIndex {
	var seen [BlendshapeCount]bool
	for _, mappings := range visemeToBlendshapes {
		for _, m := range mappings {
			seen[m.Index] = true
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

// VisemeBlendshapes returns the base mappings for v. The slice must not be
// modified.
func VisemeBlendshapes(v lipsync.Viseme) []BlendshapeMapping {
	if v < 0 || v >= lipsync.VisemeCount {
		return nil
	}
	return visemeToBlendshapes[v]
}

// MouthTargets returns the fixed set of blend shapes owned by lipsync.
func MouthTargets() []BlendshapeIndex {
	out := make([]BlendshapeIndex, len(mouthTargets))
	copy(out, mouthTargets)
	return out
}

// IsMouthTarget reports whether idx belongs to the lipsync-owned set.
func IsMouthTarget(idx BlendshapeIndex) bool {
	for _, m := range mouthTargets {
		if m == idx {
			return true
		}
	}
	return false
}
