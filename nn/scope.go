package nn

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Scope instantiates parameters and inputs inside one graph. A training scope
// binds the raw parameter values; a moving scope binds the smoothed values and
// is used for validation. Asking a scope twice for the same parameter returns
// the node created the first time.
type Scope struct {
	g      *gorgonia.ExprGraph
	params *ParamSet
	moving bool

	nodes  map[string]*gorgonia.Node
	inputs map[string]*gorgonia.Node
	losses gorgonia.Nodes
}

// NewScope instantiates params in g. A moving scope binds smoothed values.
func NewScope(g *gorgonia.ExprGraph, params *ParamSet, moving bool) *Scope {
	return &Scope{
		g:      g,
		params: params,
		moving: moving,
		nodes:  make(map[string]*gorgonia.Node),
		inputs: make(map[string]*gorgonia.Node),
	}
}

func (s *Scope) Graph() *gorgonia.ExprGraph { return s.g }

// Moving reports whether the scope reads smoothed parameter values.
func (s *Scope) Moving() bool { return s.moving }

// Param returns the node for a trainable parameter, creating it with init if
// this scope has not seen it. created is true only on the first call.
func (s *Scope) Param(name string, init gorgonia.InitWFn, shape ...int) (n *gorgonia.Node, created bool, err error) {
	if n, ok := s.nodes[name]; ok {
		if !sameShape(n.Shape(), shape) {
			return nil, false, errors.Errorf("param %s: shape %v conflicts with %v", name, shape, n.Shape())
		}
		return n, false, nil
	}
	p, ok := s.params.Get(name)
	if !ok {
		backing, ok := init(tensor.Float64, shape...).([]float64)
		if !ok {
			return nil, false, errors.Errorf("param %s: initializer did not produce float64 values", name)
		}
		if p, err = s.params.register(name, shape, false, backing); err != nil {
			return nil, false, err
		}
	} else if !sameShape(p.Shape, shape) {
		return nil, false, errors.Errorf("param %s: shape %v conflicts with %v", name, shape, p.Shape)
	}
	return s.bind(p), true, nil
}

// Frozen returns the node for a non-trainable parameter with a fixed value.
func (s *Scope) Frozen(name string, rows, cols int, backing []float64) (*gorgonia.Node, error) {
	if n, ok := s.nodes[name]; ok {
		if !sameShape(n.Shape(), []int{rows, cols}) {
			return nil, errors.Errorf("param %s: shape %v conflicts with %v", name, []int{rows, cols}, n.Shape())
		}
		return n, nil
	}
	p, err := s.params.register(name, []int{rows, cols}, true, backing)
	if err != nil {
		return nil, err
	}
	return s.bind(p), nil
}

func (s *Scope) bind(p *Param) *gorgonia.Node {
	var value *tensor.Dense
	if s.moving {
		value = p.smoothed.Clone().(*tensor.Dense)
	} else {
		value = p.raw
	}
	var n *gorgonia.Node
	if len(p.Shape) == 1 {
		n = gorgonia.NewVector(s.g, tensor.Float64, gorgonia.WithShape(p.Shape...), gorgonia.WithName(p.Name), gorgonia.WithValue(value))
	} else {
		n = gorgonia.NewMatrix(s.g, tensor.Float64, gorgonia.WithShape(p.Shape...), gorgonia.WithName(p.Name), gorgonia.WithValue(value))
	}
	if !s.moving && p.node == nil {
		p.node = n
	}
	s.nodes[p.Name] = n
	return n
}

// Input returns a placeholder fed before every run. No shape means a scalar.
// Asking again for an existing input with another shape is an error.
func (s *Scope) Input(name string, shape ...int) (*gorgonia.Node, error) {
	if n, ok := s.inputs[name]; ok {
		if sameShape(n.Shape(), shape) {
			return n, nil
		}
		return nil, errors.Errorf("input %s: shape %v conflicts with %v", name, shape, n.Shape())
	}
	var n *gorgonia.Node
	if len(shape) == 0 {
		n = gorgonia.NewScalar(s.g, tensor.Float64, gorgonia.WithName(name))
	} else {
		n = gorgonia.NewMatrix(s.g, tensor.Float64, gorgonia.WithShape(shape...), gorgonia.WithName(name))
	}
	s.inputs[name] = n
	return n, nil
}

// Feed binds a value to a placeholder created by Input.
func (s *Scope) Feed(name string, value interface{}) error {
	n, ok := s.inputs[name]
	if !ok {
		return errors.Errorf("no input named %s", name)
	}
	return gorgonia.Let(n, value)
}

// AddLoss registers an extra term of the global objective.
func (s *Scope) AddLoss(n *gorgonia.Node) {
	s.losses = append(s.losses, n)
}

// Losses returns the extra objective terms added while building the graph.
func (s *Scope) Losses() gorgonia.Nodes {
	return s.losses
}

// Refresh copies the current smoothed values into a moving scope's nodes.
func (s *Scope) Refresh() error {
	if !s.moving {
		return nil
	}
	for pname, n := range s.nodes {
		p, ok := s.params.Get(pname)
		if !ok {
			continue
		}
		v := n.Value()
		if v == nil {
			return errors.Errorf("param %s has no bound value", pname)
		}
		copy(v.Data().([]float64), p.Smoothed())
	}
	return nil
}
