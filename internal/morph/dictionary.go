// Package morph reads morph-target dictionaries from glTF models and maps
// named blend-shape weights onto per-mesh weight vectors.
package morph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qmuntal/gltf"
)

// ErrNoMorphTargets is returned when a model has no morph targets at all.
var ErrNoMorphTargets = errors.New("model has no morph targets")

// Binding locates one morph target inside a model.
type Binding struct {
	Mesh   int
	Target int
}

// MeshTargets lists the morph targets of one mesh in glTF order.
type MeshTargets struct {
	Name    string
	Targets []string
}

// Dictionary maps morph-target names to every mesh that carries them.
type Dictionary struct {
	Meshes []MeshTargets
	index  map[string][]Binding
}

// LoadDictionary opens a .gltf or .glb file and reads its morph targets.
func LoadDictionary(path string) (*Dictionary, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	dict, err := FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dict, nil
}

// FromDocument builds the dictionary from a decoded document. Target names
// come from the mesh extras "targetNames" array; unnamed targets are called
// target_<n>. A repeated mesh name gets its mesh index appended.
func FromDocument(doc *gltf.Document) (*Dictionary, error) {
	d := &Dictionary{index: make(map[string][]Binding)}
	total := 0
	seen := make(map[string]bool, len(doc.Meshes))

	for mi, mesh := range doc.Meshes {
		count := 0
		for _, prim := range mesh.Primitives {
			// All primitives of a mesh share the target list.
			if len(prim.Targets) > count {
				count = len(prim.Targets)
			}
		}

		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("target_%d", i)
		}
		for i, name := range targetNames(mesh.Extras) {
			if i < count && name != "" {
				names[i] = name
			}
		}

		name := mesh.Name
		if name == "" {
			name = fmt.Sprintf("mesh_%d", mi)
		}
		// Exporters repeat mesh names; MeshWeights keys on them.
		for seen[name] {
			name = fmt.Sprintf("%s_%d", name, mi)
		}
		seen[name] = true
		d.Meshes = append(d.Meshes, MeshTargets{Name: name, Targets: names})
		for ti, n := range names {
			d.index[n] = append(d.index[n], Binding{Mesh: mi, Target: ti})
		}
		total += count
	}

	if total == 0 {
		return nil, ErrNoMorphTargets
	}
	return d, nil
}

func targetNames(extras any) []string {
	m, ok := extras.(map[string]any)
	if !ok {
		return nil
	}
	switch raw := m["targetNames"].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, len(raw))
		for i, v := range raw {
			out[i], _ = v.(string)
		}
		return out
	}
	return nil
}

// Has reports whether any mesh carries a target called name.
func (d *Dictionary) Has(name string) bool {
	return len(d.index[name]) > 0
}

// Lookup returns every binding for name.
func (d *Dictionary) Lookup(name string) []Binding {
	return d.index[name]
}

// Names returns all distinct target names, sorted.
func (d *Dictionary) Names() []string {
	out := make([]string, 0, len(d.index))
	for n := range d.index {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Report splits a set of wanted names by whether the model has them.
type Report struct {
	Covered []string `json:"covered"`
	Missing []string `json:"missing"`
}

// Coverage checks wanted against the dictionary. Order follows wanted.
func (d *Dictionary) Coverage(wanted []string) Report {
	var r Report
	for _, n := range wanted {
		if d.Has(n) {
			r.Covered = append(r.Covered, n)
		} else {
			r.Missing = append(r.Missing, n)
		}
	}
	return r
}

// MeshWeights scatters named weights into one weight vector per mesh, keyed
// by mesh name. Names the model lacks are ignored.
func (d *Dictionary) MeshWeights(weights map[string]float32) map[string][]float32 {
	out := make(map[string][]float32, len(d.Meshes))
	for _, m := range d.Meshes {
		if len(m.Targets) > 0 {
			out[m.Name] = make([]float32, len(m.Targets))
		}
	}
	for name, w := range weights {
		for _, b := range d.index[name] {
			out[d.Meshes[b.Mesh].Name][b.Target] = w
		}
	}
	return out
}
