package parser

import (
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"

	"github.com/CoNLL-UD-2017/UnstableParser/conllu"
	"github.com/CoNLL-UD-2017/UnstableParser/history"
	"github.com/CoNLL-UD-2017/UnstableParser/nn"
)

const (
	N_TOKENS      = "n_tokens"
	N_SEQUENCES   = "n_sequences"
	LOSS          = "loss"
	N_UAS_CORRECT = "n_uas_correct"
	N_LAS_CORRECT = "n_las_correct"
)

var trainKeys = []string{N_TOKENS, N_SEQUENCES, LOSS, N_UAS_CORRECT, N_LAS_CORRECT}

// Dataset is one split of the corpus bound to the model built for it. The
// training split updates parameters after every batch; the validation split
// reads the smoothed parameters and never updates.
type Dataset struct {
	name  string
	sents []conllu.Sentence
	model *Model
	rng   *rand.Rand

	vm  gorgonia.VM
	opt *nn.Optimizer

	plotDir   string
	modelName string
	stale     bool
}

// NewDataset wraps sents. A non-nil rng reshuffles the batches at every pass.
func NewDataset(name string, sents []conllu.Sentence, model *Model, rng *rand.Rand) *Dataset {
	return &Dataset{name: name, sents: sents, model: model, rng: rng}
}

// Bind attaches the machine that runs the model's graph. opt is nil for
// splits that must not update parameters.
func (d *Dataset) Bind(vm gorgonia.VM, opt *nn.Optimizer) {
	d.vm = vm
	d.opt = opt
}

// PlotTo sets where Plot writes {name}.plot.json.
func (d *Dataset) PlotTo(dir, modelName string) {
	d.plotDir = dir
	d.modelName = modelName
}

func (d *Dataset) Name() string { return d.name }

func (d *Dataset) Len() int { return len(d.sents) }

// IterBatches restarts the batch sequence.
func (d *Dataset) IterBatches() Iterator {
	d.stale = true
	return Batches(d.sents, d.model.opts.BatchSize, d.rng)
}

func (d *Dataset) TrainKeys() []string { return trainKeys }

// Run feeds one batch, executes the graph and, for the training split,
// applies an optimizer step. It returns the batch metrics in TrainKeys order.
func (d *Dataset) Run(b *Batch) ([]float64, error) {
	if d.vm == nil {
		return nil, errors.Errorf("%s dataset is not bound to a machine", d.name)
	}
	if d.stale {
		if err := d.model.scope.Refresh(); err != nil {
			return nil, err
		}
		d.stale = false
	}
	d.vm.Reset()
	l, err := d.model.feed(b)
	if err != nil {
		return nil, errors.Wrapf(err, "%s feed", d.name)
	}
	if err := d.vm.RunAll(); err != nil {
		return nil, errors.Wrapf(err, "%s run", d.name)
	}
	metrics, err := d.model.metrics(l)
	if err != nil {
		return nil, err
	}
	if d.opt != nil {
		if err := d.opt.Update(); err != nil {
			return nil, errors.Wrapf(err, "%s update", d.name)
		}
	}
	return metrics, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func percent(num, den float64) float64 { return 100 * ratio(num, den) }

func title(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// UpdateHistory appends the token-averaged loss and the attachment scores.
func (d *Dataset) UpdateHistory(s history.Series, acc []float64) {
	nTok := acc[0]
	s.Append("loss", ratio(acc[2], nTok))
	s.Append("UAS", percent(acc[3], nTok))
	s.Append("LAS", percent(acc[4], nTok))
}

// PrintAccuracy writes one summary line for the split.
func (d *Dataset) PrintAccuracy(w io.Writer, acc []float64, elapsed time.Duration) {
	nTok := acc[0]
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = acc[1] / secs
	}
	fmt.Fprintf(w, "%-5s loss: %.4f  UAS: %5.2f%%  LAS: %5.2f%%  (%.1f seqs/sec)\n",
		title(d.name), ratio(acc[2], nTok), percent(acc[3], nTok), percent(acc[4], nTok), rate)
}

// Plot writes the split's history as a line chart.
func (d *Dataset) Plot(s history.Series) error {
	if d.plotDir == "" {
		return nil
	}
	path := filepath.Join(d.plotDir, d.name+".plot.json")
	return history.Plot(s, d.modelName, title(d.name), path)
}
