package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every option recognized by the trainer.
type Config struct {
	Name    string `yaml:"name"`
	SaveDir string `yaml:"save_dir"`

	TrainFiles     []string `yaml:"train_files"`
	ValidFiles     []string `yaml:"valid_files"`
	PretrainedFile string   `yaml:"pretrained_file"`
	MaxRank        int      `yaml:"max_rank"`
	MinOccurCount  int      `yaml:"min_occur_count"`

	// Loop control
	MaxTrainIters int  `yaml:"max_train_iters"`
	ValidateEvery int  `yaml:"validate_every"`
	SaveEvery     int  `yaml:"save_every"` // epochs, 0 disables periodic saves
	Verbose       bool `yaml:"verbose"`

	// -1 means grow dynamically
	PerProcessGPUMemoryFraction float64 `yaml:"per_process_gpu_memory_fraction"`

	// Model sizes
	EmbedSize         int `yaml:"embed_size"`
	TagEmbedSize      int `yaml:"tag_embed_size"`
	SubtokenEmbedSize int `yaml:"subtoken_embed_size"`
	HiddenSize        int `yaml:"hidden_size"`
	BatchSize         int `yaml:"batch_size"` // sentences per mini-batch
	MaxSentLen        int `yaml:"max_sent_len"`

	// Optimizer
	LearningRate float64 `yaml:"learning_rate"`
	Beta1        float64 `yaml:"beta1"`
	Beta2        float64 `yaml:"beta2"`
	Epsilon      float64 `yaml:"epsilon"`
	EMADecay     float64 `yaml:"ema_decay"`

	SubtokenCacheSize int   `yaml:"subtoken_cache_size"`
	Seed              int64 `yaml:"seed"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Name:    "Parser",
		SaveDir: "saves",

		MaxRank:       100000,
		MinOccurCount: 2,

		MaxTrainIters: 50000,
		ValidateEvery: 100,
		SaveEvery:     1,
		Verbose:       true,

		PerProcessGPUMemoryFraction: -1,

		EmbedSize:         100,
		TagEmbedSize:      50,
		SubtokenEmbedSize: 100,
		HiddenSize:        200,
		BatchSize:         8,
		MaxSentLen:        64,

		LearningRate: 2e-3,
		Beta1:        0.9,
		Beta2:        0.9,
		Epsilon:      1e-12,
		EMADecay:     0.9,

		SubtokenCacheSize: 4096,
		Seed:              1337,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c *Config) Validate() error {
	switch {
	case c.Name == "":
		return errors.New("name must not be empty")
	case c.SaveDir == "":
		return errors.New("save_dir must not be empty")
	case c.MaxTrainIters < 0:
		return errors.Errorf("max_train_iters must be >= 0, got %d", c.MaxTrainIters)
	case c.ValidateEvery <= 0:
		return errors.Errorf("validate_every must be > 0, got %d", c.ValidateEvery)
	case c.SaveEvery < 0:
		return errors.Errorf("save_every must be >= 0, got %d", c.SaveEvery)
	case c.MaxRank < 0:
		return errors.Errorf("max_rank must be >= 0, got %d", c.MaxRank)
	case c.BatchSize <= 0:
		return errors.Errorf("batch_size must be > 0, got %d", c.BatchSize)
	case c.MaxSentLen < 2:
		return errors.Errorf("max_sent_len must be >= 2, got %d", c.MaxSentLen)
	case c.EMADecay < 0 || c.EMADecay >= 1:
		return errors.Errorf("ema_decay must be in [0, 1), got %g", c.EMADecay)
	}
	f := c.PerProcessGPUMemoryFraction
	if f != -1 && (f <= 0 || f > 1) {
		return errors.Errorf("per_process_gpu_memory_fraction must be -1 or in (0, 1], got %g", f)
	}
	return nil
}

// AllowGrowth reports whether device memory should grow on demand.
func (c *Config) AllowGrowth() bool {
	return c.PerProcessGPUMemoryFraction == -1
}
