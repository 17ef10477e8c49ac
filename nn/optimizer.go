package nn

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Optimizer applies Adam updates to the raw parameter values and keeps the
// smoothed view as an exponential moving average of them.
type Optimizer struct {
	solver gorgonia.Solver
	params *ParamSet
	decay  float64
	t      int
}

// OptimizerConfig holds the Adam hyperparameters and the moving-average decay.
type OptimizerConfig struct {
	LearningRate float64
	Beta1, Beta2 float64
	Epsilon      float64
	EMADecay     float64
}

// NewOptimizer updates every learnable parameter of params.
func NewOptimizer(params *ParamSet, cfg OptimizerConfig) *Optimizer {
	solver := gorgonia.NewAdamSolver(
		gorgonia.WithLearnRate(cfg.LearningRate),
		gorgonia.WithBeta1(cfg.Beta1),
		gorgonia.WithBeta2(cfg.Beta2),
		gorgonia.WithEps(cfg.Epsilon),
	)
	return &Optimizer{solver: solver, params: params, decay: cfg.EMADecay}
}

// Update takes one step using the gradients left on the training graph by the
// last run, then advances the moving averages.
func (o *Optimizer) Update() error {
	learnables := o.params.Learnables()
	if len(learnables) > 0 {
		if err := o.solver.Step(gorgonia.NodesToValueGrads(learnables)); err != nil {
			return errors.Wrap(err, "solver step")
		}
	}
	o.t++
	o.average()
	return nil
}

// average applies smoothed = d*smoothed + (1-d)*raw, with d warming up from
// 0.1 towards the configured decay during the first steps.
func (o *Optimizer) average() {
	d := math.Min(o.decay, float64(1+o.t)/float64(10+o.t))
	for _, p := range o.params.All() {
		if p.Frozen {
			continue
		}
		raw, smoothed := p.Raw(), p.Smoothed()
		for i := range smoothed {
			smoothed[i] = d*smoothed[i] + (1-d)*raw[i]
		}
	}
}

// Steps returns the number of updates applied so far.
func (o *Optimizer) Steps() int { return o.t }

// SetSteps restores the update counter after a resume.
func (o *Optimizer) SetSteps(t int) { o.t = t }
