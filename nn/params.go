// Package nn holds the trainable state of a run: named parameters with a raw
// and a smoothed view, the graph scopes that instantiate them, the optimizer
// that keeps both views current and the session that executes the graphs.
package nn

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param is one named parameter. Training mutates the raw view; validation
// reads the smoothed view. Frozen parameters (pretrained tables) are never
// updated and never saved.
type Param struct {
	Name   string
	Shape  []int
	Frozen bool

	raw      *tensor.Dense
	smoothed *tensor.Dense
	node     *gorgonia.Node // in the training graph
}

// Raw returns the live raw values.
func (p *Param) Raw() []float64 {
	if p.node != nil && p.node.Value() != nil {
		return p.node.Value().Data().([]float64)
	}
	return p.raw.Data().([]float64)
}

// Smoothed returns the moving-average values.
func (p *Param) Smoothed() []float64 {
	return p.smoothed.Data().([]float64)
}

// Size is the number of scalars in the parameter.
func (p *Param) Size() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// Set overwrites both views, as done when restoring a checkpoint.
func (p *Param) Set(raw, smoothed []float64) error {
	if len(raw) != p.Size() || len(smoothed) != p.Size() {
		return errors.Errorf("param %s: expected %d values, got %d/%d", p.Name, p.Size(), len(raw), len(smoothed))
	}
	copy(p.Raw(), raw)
	copy(p.Smoothed(), smoothed)
	return nil
}

// ParamSet is the run-owned, ordered collection of parameters.
type ParamSet struct {
	params []*Param
	byName map[string]*Param
}

// NewParamSet returns an empty set.
func NewParamSet() *ParamSet {
	return &ParamSet{byName: make(map[string]*Param)}
}

func (ps *ParamSet) register(name string, shape []int, frozen bool, backing []float64) (*Param, error) {
	if p, ok := ps.byName[name]; ok {
		if !sameShape(p.Shape, shape) {
			return nil, errors.Errorf("param %s: shape %v conflicts with %v", name, shape, p.Shape)
		}
		return p, nil
	}
	size := 1
	for _, d := range shape {
		size *= d
	}
	if len(backing) != size {
		return nil, errors.Errorf("param %s: shape %v needs %d values, got %d", name, shape, size, len(backing))
	}
	raw := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	p := &Param{
		Name:   name,
		Shape:  append([]int(nil), shape...),
		Frozen: frozen,
		raw:    raw,
	}
	if frozen {
		p.smoothed = raw
	} else {
		p.smoothed = raw.Clone().(*tensor.Dense)
	}
	ps.params = append(ps.params, p)
	ps.byName[name] = p
	return p, nil
}

// Get returns the parameter registered under name.
func (ps *ParamSet) Get(name string) (*Param, bool) {
	p, ok := ps.byName[name]
	return p, ok
}

// All returns every parameter in registration order.
func (ps *ParamSet) All() []*Param {
	return ps.params
}

// Saveable returns the parameters written to checkpoints.
func (ps *ParamSet) Saveable() []*Param {
	var out []*Param
	for _, p := range ps.params {
		if !p.Frozen {
			out = append(out, p)
		}
	}
	return out
}

// Learnables returns the training-graph nodes of every trainable parameter.
func (ps *ParamSet) Learnables() gorgonia.Nodes {
	var out gorgonia.Nodes
	for _, p := range ps.params {
		if !p.Frozen && p.node != nil {
			out = append(out, p.node)
		}
	}
	return out
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
