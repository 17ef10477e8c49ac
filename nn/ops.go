package nn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Orthogonality builds ‖A·Aᵀ − I‖² (squared Frobenius norm) for a matrix node.
func Orthogonality(g *gorgonia.ExprGraph, a *gorgonia.Node) (*gorgonia.Node, error) {
	rows := a.Shape()[0]
	eye := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, rows),
		gorgonia.WithName(a.Name()+"/Eye"),
		gorgonia.WithValue(Identity(rows)),
	)
	at, err := gorgonia.Transpose(a)
	if err != nil {
		return nil, errors.Wrap(err, "transpose")
	}
	aat, err := gorgonia.Mul(a, at)
	if err != nil {
		return nil, errors.Wrap(err, "A*At")
	}
	diff, err := gorgonia.Sub(aat, eye)
	if err != nil {
		return nil, errors.Wrap(err, "A*At - I")
	}
	sq, err := gorgonia.Square(diff)
	if err != nil {
		return nil, err
	}
	return gorgonia.Sum(sq)
}

// OrthogonalityPenalty evaluates the same term outside a graph.
func OrthogonalityPenalty(a mat.Matrix) float64 {
	r, _ := a.Dims()
	var aat mat.Dense
	aat.Mul(a, a.T())
	for i := 0; i < r; i++ {
		aat.Set(i, i, aat.At(i, i)-1)
	}
	f := mat.Norm(&aat, 2)
	return f * f
}

// Identity returns an n×n identity matrix.
func Identity(n int) *tensor.Dense {
	backing := make([]float64, n*n)
	for i := 0; i < n; i++ {
		backing[i*n+i] = 1
	}
	return tensor.New(tensor.WithShape(n, n), tensor.WithBacking(backing))
}

// OneHot returns a rows×cols matrix with a single 1 per row at idx[i].
// Negative indices leave the row empty.
func OneHot(idx []int, rows, cols int) *tensor.Dense {
	backing := make([]float64, rows*cols)
	for i, j := range idx {
		if i >= rows {
			break
		}
		if j >= 0 && j < cols {
			backing[i*cols+j] = 1
		}
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

// Matrix wraps row-major values as a dense tensor.
func Matrix(rows, cols int, backing []float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

// ScalarValue reads a float64 scalar out of a node after a run.
func ScalarValue(n *gorgonia.Node) (float64, error) {
	v := n.Value()
	if v == nil {
		return 0, errors.Errorf("node %s has no value", n.Name())
	}
	switch d := v.Data().(type) {
	case float64:
		return d, nil
	case []float64:
		if len(d) == 1 {
			return d[0], nil
		}
	}
	return 0, errors.Errorf("node %s is not a float64 scalar", n.Name())
}
