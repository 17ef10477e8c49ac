package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/pkg/errors"

	"github.com/CoNLL-UD-2017/UnstableParser/config"
	"github.com/CoNLL-UD-2017/UnstableParser/network"
	"github.com/CoNLL-UD-2017/UnstableParser/vocab"
)

var (
	configFile     string
	name           string
	saveDir        string
	trainFiles     string
	validFiles     string
	pretrainedFile string
	maxRank        int
	maxTrainIters  int
	validateEvery  int
	saveEvery      int
	quiet          bool
	resume         bool
)

func addConfigFlags(fs *flag.FlagSet) {
	fs.StringVar(&configFile, "config", "", "YAML configuration file")
	fs.StringVar(&name, "name", "", "Run name, prefix of checkpoint files")
	fs.StringVar(&saveDir, "save_dir", "", "Directory for checkpoints, history and plots")
	fs.StringVar(&trainFiles, "train", "", "Comma-separated training CoNLL-U files")
	fs.StringVar(&validFiles, "valid", "", "Comma-separated validation CoNLL-U files")
	fs.StringVar(&pretrainedFile, "pretrained", "", "Pretrained embeddings, one token and vector per line")
	fs.IntVar(&maxRank, "max_rank", -1, "Read at most this many pretrained vectors")
	fs.IntVar(&maxTrainIters, "max_train_iters", -1, "Stop after this many mini-batches")
	fs.IntVar(&validateEvery, "validate_every", -1, "Validate every n mini-batches")
	fs.IntVar(&saveEvery, "save_every", -1, "Checkpoint every n epochs; 0 saves only at the end")
	fs.BoolVar(&quiet, "quiet", false, "Do not print accuracy summaries")
}

func splitFiles(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// loadConfig reads -config, then applies every flag that was set.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	if name != "" {
		cfg.Name = name
	}
	if saveDir != "" {
		cfg.SaveDir = saveDir
	}
	if files := splitFiles(trainFiles); len(files) > 0 {
		cfg.TrainFiles = files
	}
	if files := splitFiles(validFiles); len(files) > 0 {
		cfg.ValidFiles = files
	}
	if pretrainedFile != "" {
		cfg.PretrainedFile = pretrainedFile
	}
	for _, o := range []struct {
		flag int
		opt  *int
	}{
		{maxRank, &cfg.MaxRank},
		{maxTrainIters, &cfg.MaxTrainIters},
		{validateEvery, &cfg.ValidateEvery},
		{saveEvery, &cfg.SaveEvery},
	} {
		if o.flag >= 0 {
			*o.opt = o.flag
		}
	}
	if quiet {
		cfg.Verbose = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.TrainFiles) == 0 {
		return nil, errors.New("no training files given")
	}
	return cfg, nil
}

func runTrain(cmd *commander.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Printf("Run %s, saving to %s", cfg.Name, cfg.SaveDir)
	net, err := network.New(cfg)
	if err != nil {
		return err
	}
	return net.Train(resume)
}

func trainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runTrain,
		UsageLine: "train [options]",
		Short:     "trains a dependency parser",
		Long: `
trains a dependency parser, validating and checkpointing as it goes

	$ ./parser train -config parser.yaml [-resume] [options]

`,
		Flag: *flag.NewFlagSet("train", flag.ExitOnError),
	}
	addConfigFlags(&cmd.Flag)
	cmd.Flag.BoolVar(&resume, "resume", false, "Continue from the latest checkpoint")
	return cmd
}

func runVocab(cmd *commander.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := vocab.NewRegistry(network.VocabOptions(cfg), cfg.TrainFiles)
	if err != nil {
		return err
	}
	if err := reg.AddFileVocabs(cfg.ValidFiles); err != nil {
		return err
	}
	if err := reg.Write(cfg.SaveDir); err != nil {
		return err
	}
	log.Printf("Wrote vocabularies to %s", cfg.SaveDir)
	return nil
}

func vocabCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runVocab,
		UsageLine: "vocab [options]",
		Short:     "builds the vocabularies and writes them to save_dir",
		Long: `
builds every vocabulary from the corpus and writes {save_dir}/{name}.txt

	$ ./parser vocab -config parser.yaml

`,
		Flag: *flag.NewFlagSet("vocab", flag.ExitOnError),
	}
	addConfigFlags(&cmd.Flag)
	return cmd
}

func main() {
	cmd := &commander.Command{
		UsageLine: os.Args[0],
		Short:     "graph-based dependency parser trainer",
		Subcommands: []*commander.Command{
			trainCmd(),
			vocabCmd(),
		},
		Flag: *flag.NewFlagSet("parser", flag.ExitOnError),
	}
	if err := cmd.Dispatch(os.Args[1:]); err != nil {
		fmt.Printf("**err**: %v\n", err)
		os.Exit(1)
	}
}
