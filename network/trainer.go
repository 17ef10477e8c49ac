package network

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/CoNLL-UD-2017/UnstableParser/history"
	"github.com/CoNLL-UD-2017/UnstableParser/parser"
)

// Dataset is a split the trainer iterates over.
type Dataset interface {
	IterBatches() parser.Iterator
	TrainKeys() []string
	Run(b *parser.Batch) ([]float64, error)
	UpdateHistory(s history.Series, acc []float64)
	PrintAccuracy(w io.Writer, acc []float64, elapsed time.Duration)
	Plot(s history.Series) error
}

// Saver persists a snapshot of the run: the parameters first, the history
// once the plots are written.
type Saver interface {
	SaveCheckpoint(step, epoch int) error
	SaveHistory(h *history.History) error
}

// Trainer is the epoch/iteration loop. Step counts mini-batches and Epoch
// counts full passes; both carry over from a restored checkpoint.
type Trainer struct {
	MaxTrainIters int
	ValidateEvery int
	SaveEvery     int
	Verbose       bool
	Out           io.Writer

	Trainset Dataset
	Validset Dataset
	History  *history.History
	Saver    Saver

	Step  int
	Epoch int
}

func accumulate(sum, acc []float64) error {
	if len(acc) != len(sum) {
		return errors.Errorf("expected %d metrics, got %d", len(sum), len(acc))
	}
	for i, v := range acc {
		sum[i] += v
	}
	return nil
}

// Run trains until Step reaches MaxTrainIters. The bound is checked only
// between epochs, and the run always ends with a save.
func (t *Trainer) Run() error {
	if t.Out == nil {
		t.Out = os.Stdout
	}
	if t.History == nil {
		t.History = history.New()
	}
	trainAcc := make([]float64, len(t.Trainset.TrainKeys()))
	var trainTime time.Duration

	for t.Step < t.MaxTrainIters {
		batches := 0
		it := t.Trainset.IterBatches()
		for b, ok := it.Next(); ok; b, ok = it.Next() {
			start := time.Now()
			acc, err := t.Trainset.Run(b)
			if err != nil {
				return errors.Wrapf(err, "step %d", t.Step+1)
			}
			if err := accumulate(trainAcc, acc); err != nil {
				return errors.Wrap(err, "train")
			}
			trainTime += time.Since(start)
			t.Step++
			batches++

			if t.Step == 1 || (t.ValidateEvery > 0 && t.Step%t.ValidateEvery == 0) {
				validAcc, validTime, err := t.validate()
				if err != nil {
					return errors.Wrapf(err, "validate at step %d", t.Step)
				}
				t.Trainset.UpdateHistory(t.History.Train, trainAcc)
				t.Validset.UpdateHistory(t.History.Valid, validAcc)
				if t.Verbose {
					fmt.Fprintf(t.Out, "%6d)\n", t.Step)
					t.Trainset.PrintAccuracy(t.Out, trainAcc, trainTime)
					t.Validset.PrintAccuracy(t.Out, validAcc, validTime)
				}
				for i := range trainAcc {
					trainAcc[i] = 0
				}
				trainTime = 0
			}
		}
		if batches == 0 {
			return errors.New("training set produced no batches")
		}
		t.Epoch++
		if t.SaveEvery != 0 && t.Epoch%t.SaveEvery == 0 {
			if err := t.save(); err != nil {
				return err
			}
		}
	}
	return t.save()
}

func (t *Trainer) validate() ([]float64, time.Duration, error) {
	acc := make([]float64, len(t.Validset.TrainKeys()))
	start := time.Now()
	it := t.Validset.IterBatches()
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		batchAcc, err := t.Validset.Run(b)
		if err != nil {
			return nil, 0, err
		}
		if err := accumulate(acc, batchAcc); err != nil {
			return nil, 0, err
		}
	}
	return acc, time.Since(start), nil
}

func (t *Trainer) save() error {
	if err := t.Saver.SaveCheckpoint(t.Step, t.Epoch); err != nil {
		return errors.Wrapf(err, "save epoch %d", t.Epoch)
	}
	if err := t.Trainset.Plot(t.History.Train); err != nil {
		return errors.Wrap(err, "plot train")
	}
	if err := t.Validset.Plot(t.History.Valid); err != nil {
		return errors.Wrap(err, "plot valid")
	}
	if err := t.Saver.SaveHistory(t.History); err != nil {
		return errors.Wrapf(err, "save history at epoch %d", t.Epoch)
	}
	return nil
}
