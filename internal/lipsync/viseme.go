// Package lipsync turns a live magnitude spectrum into a per-frame viseme
// label and volume, using banded spectral energy, a short rolling history and
// a fixed scoring policy.
package lipsync

import "fmt"

// Viseme identifies one of the 15 Oculus mouth shapes. The ordinal is the
// Oculus viseme ID and doubles as the classifier's tie-break order.
type Viseme int

const (
	VisemeSil Viseme = iota // silence
	VisemePP                // p, b, m
	VisemeFF                // f, v
	VisemeTH                // th
	VisemeDD                // t, d
	VisemeKK                // k, g
	VisemeCH                // ch, j, sh
	VisemeSS                // s, z
	VisemeNN                // n, l
	VisemeRR                // r
	VisemeAA                // a as in "father"
	VisemeE                 // e as in "bed"
	VisemeI                 // i as in "sit"
	VisemeO                 // o as in "go"
	VisemeU                 // u as in "boot"
	VisemeCount
)

var visemeNames = [VisemeCount]string{
	"sil", "PP", "FF", "TH", "DD", "kk", "CH", "SS", "nn", "RR", "aa", "E", "I", "O", "U",
}

func (v Viseme) String() string {
	if v < 0 || v >= VisemeCount {
		return "unknown"
	}
	return visemeNames[v]
}

// TargetName returns the morph target name conventionally used for the
// viseme on Ready Player Me style rigs ("viseme_aa").
func (v Viseme) TargetName() string {
	return "viseme_" + v.String()
}

// IsVowel reports whether v is one of the five vowel shapes.
func (v Viseme) IsVowel() bool {
	return v.Class() == ClassVowel
}

// Visemes returns every viseme in enumeration order.
func Visemes() []Viseme {
	out := make([]Viseme, VisemeCount)
	for i := range out {
		out[i] = Viseme(i)
	}
	return out
}

func (v Viseme) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Viseme) UnmarshalText(text []byte) error {
	parsed, ok := ParseViseme(string(text))
	if !ok {
		return fmt.Errorf("unknown viseme %q", text)
	}
	*v = parsed
	return nil
}

// ParseViseme resolves a viseme by its short name.
func ParseViseme(name string) (Viseme, bool) {
	for i, n := range visemeNames {
		if n == name {
			return Viseme(i), true
		}
	}
	return VisemeSil, false
}

// ArticulatoryClass groups visemes by how the mouth forms them. The shaping
// policy picks its rise and decay speeds from it.
type ArticulatoryClass string

const (
	ClassSilence   ArticulatoryClass = "silence"
	ClassVowel     ArticulatoryClass = "vowel"
	ClassPlosive   ArticulatoryClass = "plosive"
	ClassFricative ArticulatoryClass = "fricative"
)

var visemeClasses = [VisemeCount]ArticulatoryClass{
	VisemeSil: ClassSilence,
	VisemePP:  ClassPlosive,
	VisemeFF:  ClassFricative,
	VisemeTH:  ClassFricative,
	VisemeDD:  ClassPlosive,
	VisemeKK:  ClassPlosive,
	VisemeCH:  ClassFricative,
	VisemeSS:  ClassFricative,
	VisemeNN:  ClassPlosive,
	VisemeRR:  ClassFricative,
	VisemeAA:  ClassVowel,
	VisemeE:   ClassVowel,
	VisemeI:   ClassVowel,
	VisemeO:   ClassVowel,
	VisemeU:   ClassVowel,
}

// Class maps a viseme to its articulatory class. Out-of-range values map to
// silence.
func (v Viseme) Class() ArticulatoryClass {
	if v < 0 || v >= VisemeCount {
		return ClassSilence
	}
	return visemeClasses[v]
}
