package vocab

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Zipf is a rank/frequency curve in log-log space: log f = Alpha + Beta·log r.
type Zipf struct {
	Alpha float64
	Beta  float64
}

// FitZipf regresses log count on log rank, ranking counts most frequent first.
func FitZipf(counts []int) (*Zipf, error) {
	if len(counts) < 2 {
		return nil, errors.Errorf("need at least 2 counts to fit a Zipf curve, got %d", len(counts))
	}
	sorted := append([]int(nil), counts...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	x := make([]float64, len(sorted))
	y := make([]float64, len(sorted))
	for i, c := range sorted {
		if c <= 0 {
			return nil, errors.Errorf("non-positive count %d at rank %d", c, i+1)
		}
		x[i] = math.Log(float64(i + 1))
		y[i] = math.Log(float64(c))
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return nil, errors.New("degenerate Zipf fit")
	}
	return &Zipf{Alpha: alpha, Beta: beta}, nil
}

// Predict returns the frequency the curve assigns to a 1-based rank.
func (z *Zipf) Predict(rank int) float64 {
	return math.Exp(z.Alpha + z.Beta*math.Log(float64(rank)))
}

// PredictN returns the frequencies for ranks 1..n.
func (z *Zipf) PredictN(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = z.Predict(i + 1)
	}
	return out
}

// IdealZipf returns f(r) = 1/r for ranks 1..n.
func IdealZipf(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(i+1)
	}
	return out
}
