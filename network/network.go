// Package network owns a training run: it builds the vocabularies, the
// training and validation graphs, and drives them through the Trainer loop
// with periodic validation and checkpoints.
package network

import (
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"

	"github.com/CoNLL-UD-2017/UnstableParser/checkpoint"
	"github.com/CoNLL-UD-2017/UnstableParser/config"
	"github.com/CoNLL-UD-2017/UnstableParser/conllu"
	"github.com/CoNLL-UD-2017/UnstableParser/history"
	"github.com/CoNLL-UD-2017/UnstableParser/nn"
	"github.com/CoNLL-UD-2017/UnstableParser/parser"
	"github.com/CoNLL-UD-2017/UnstableParser/vocab"
)

// Network is one training run: its vocabularies, parameters and checkpoints.
type Network struct {
	cfg    *config.Config
	Vocabs *vocab.Registry
	Params *nn.ParamSet

	Checkpoints *checkpoint.Manager
	Out         io.Writer

	trainSents []conllu.Sentence
}

// VocabOptions maps the configuration onto vocabulary sizes.
func VocabOptions(cfg *config.Config) vocab.Options {
	return vocab.Options{
		EmbedSize:         cfg.EmbedSize,
		TagEmbedSize:      cfg.TagEmbedSize,
		SubtokenEmbedSize: cfg.SubtokenEmbedSize,
		MinOccurCount:     cfg.MinOccurCount,
		SubtokenCacheSize: cfg.SubtokenCacheSize,
		PretrainedFile:    cfg.PretrainedFile,
		MaxRank:           cfg.MaxRank,
	}
}

// New builds the vocabularies from the training files.
func New(cfg *config.Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	sents, err := conllu.ReadFiles(cfg.TrainFiles)
	if err != nil {
		return nil, errors.Wrap(err, "train files")
	}
	reg, err := vocab.NewRegistry(VocabOptions(cfg), cfg.TrainFiles)
	if err != nil {
		return nil, err
	}
	return &Network{
		cfg:         cfg,
		Vocabs:      reg,
		Params:      nn.NewParamSet(),
		Checkpoints: checkpoint.NewManager(cfg.SaveDir, cfg.Name),
		Out:         os.Stdout,
		trainSents:  sents,
	}, nil
}

func (n *Network) historyPath() string {
	return filepath.Join(n.cfg.SaveDir, history.FILENAME)
}

func (n *Network) buildModel(g *gorgonia.ExprGraph, moving bool) (*parser.Model, *nn.Scope, error) {
	s := nn.NewScope(g, n.Params, moving)
	m, err := parser.NewModel(s, n.Vocabs, parser.Options{
		BatchSize:  n.cfg.BatchSize,
		MaxSentLen: n.cfg.MaxSentLen,
		HiddenSize: n.cfg.HiddenSize,
	})
	return m, s, err
}

// Train runs the loop. With resume the latest checkpoint and the saved
// history are restored first; a run that never saved cannot resume.
func (n *Network) Train(resume bool) error {
	cfg := n.cfg
	if err := n.Vocabs.AddFileVocabs(cfg.ValidFiles); err != nil {
		return errors.Wrap(err, "valid vocabularies")
	}
	validSents, err := conllu.ReadFiles(cfg.ValidFiles)
	if err != nil {
		return errors.Wrap(err, "valid files")
	}

	trainG := gorgonia.NewGraph()
	trainModel, trainScope, err := n.buildModel(trainG, false)
	if err != nil {
		return err
	}
	validG := gorgonia.NewGraph()
	validModel, _, err := n.buildModel(validG, true)
	if err != nil {
		return err
	}

	cost := trainModel.Loss
	for _, l := range trainScope.Losses() {
		if cost, err = gorgonia.Add(cost, l); err != nil {
			return errors.Wrap(err, "total loss")
		}
	}
	learnables := n.Params.Learnables()
	if _, err := gorgonia.Grad(cost, learnables...); err != nil {
		return errors.Wrap(err, "gradients")
	}

	sess := nn.NewSession(trainG, validG, learnables, nn.DeviceOptions{
		AllowGrowth:    cfg.AllowGrowth(),
		MemoryFraction: cfg.PerProcessGPUMemoryFraction,
	})
	defer sess.Close()

	opt := nn.NewOptimizer(n.Params, nn.OptimizerConfig{
		LearningRate: cfg.LearningRate,
		Beta1:        cfg.Beta1,
		Beta2:        cfg.Beta2,
		Epsilon:      cfg.Epsilon,
		EMADecay:     cfg.EMADecay,
	})

	trainer := &Trainer{
		MaxTrainIters: cfg.MaxTrainIters,
		ValidateEvery: cfg.ValidateEvery,
		SaveEvery:     cfg.SaveEvery,
		Verbose:       cfg.Verbose,
		Out:           n.Out,
		History:       history.New(),
		Saver:         &runSaver{n: n, opt: opt},
	}
	if resume {
		if err := n.restore(trainer, opt); err != nil {
			return err
		}
	}

	trainset := parser.NewDataset("train", n.trainSents, trainModel, rand.New(rand.NewSource(cfg.Seed+int64(trainer.Epoch))))
	trainset.Bind(sess.Train, opt)
	trainset.PlotTo(cfg.SaveDir, cfg.Name)
	validset := parser.NewDataset("valid", validSents, validModel, nil)
	validset.Bind(sess.Valid, nil)
	validset.PlotTo(cfg.SaveDir, cfg.Name)
	trainer.Trainset = trainset
	trainer.Validset = validset

	log.Printf("Training %s: %d train and %d valid sentences, %d parameters", cfg.Name, trainset.Len(), validset.Len(), len(n.Params.All()))
	return trainer.Run()
}

func (n *Network) restore(t *Trainer, opt *nn.Optimizer) error {
	path, err := n.Checkpoints.Latest()
	if err != nil {
		return errors.Wrap(err, "resume")
	}
	st, err := checkpoint.Restore(path)
	if err != nil {
		return err
	}
	if err := st.Apply(n.Params); err != nil {
		return err
	}
	h, err := history.Load(n.historyPath())
	if err != nil {
		return err
	}
	t.History = h
	t.Step = st.GlobalStep
	t.Epoch = st.GlobalEpoch
	opt.SetSteps(st.GlobalStep)
	log.Printf("Restored %s at step %d, epoch %d", path, t.Step, t.Epoch)
	return nil
}

// runSaver writes checkpoints and the history into the run's save_dir.
type runSaver struct {
	n   *Network
	opt *nn.Optimizer
}

func (s *runSaver) SaveCheckpoint(step, epoch int) error {
	path, err := s.n.Checkpoints.Save(epoch, checkpoint.Capture(s.n.Params, step, epoch))
	if err != nil {
		return err
	}
	log.Printf("Saved %s after %d updates", path, s.opt.Steps())
	if pv := s.n.Vocabs.Pretrained; pv != nil {
		if pen, ok := pv.Orthogonality(s.n.Params); ok {
			log.Printf("Pretrained projection orthogonality: %.6f", pen)
		}
	}
	return nil
}

func (s *runSaver) SaveHistory(h *history.History) error {
	return h.Save(s.n.historyPath())
}
