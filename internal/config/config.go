// # internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ScanPaths  []string   `toml:"scan_paths"`
	Exclude    Exclude    `toml:"exclude"`
	Extraction Extraction `toml:"extraction"`
	Schema     Schema     `toml:"schema"`
	Confidence Confidence `toml:"confidence"`
	Validation Validation `toml:"validation"`
	Rollout    Rollout    `toml:"rollout"`
	Artifacts  Artifacts  `toml:"artifacts"`
	Watch      Watch      `toml:"watch"`
	Metrics    Metrics    `toml:"metrics"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Extraction struct {
	// Strategy is one of "pattern", "structural", "hybrid".
	Strategy       string   `toml:"strategy"`
	MarkerTags     []string `toml:"marker_tags"`
	Include        []string `toml:"include"`
	MaxInlineDepth int      `toml:"max_inline_depth"`
	MaxVariants    int      `toml:"max_variants"`
	Workers        int      `toml:"workers"`
}

type Schema struct {
	Path string `toml:"path"`
}

type Confidence struct {
	Automatic     int `toml:"automatic"`
	SemiAutomatic int `toml:"semi_automatic"`
}

type Validation struct {
	Concurrency int           `toml:"concurrency"`
	Timeout     time.Duration `toml:"timeout"`
	RatePerSec  float64       `toml:"rate_per_sec"`
}

type Rollout struct {
	InitialPercentage int           `toml:"initial_percentage"`
	StepPercentage    int           `toml:"step_percentage"`
	StepInterval      time.Duration `toml:"step_interval"`
	MaxErrorRate      float64       `toml:"max_error_rate"`
	MaxLatency        time.Duration `toml:"max_latency"`
}

type Artifacts struct {
	Path string `toml:"path"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied and no file loaded.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if len(cfg.ScanPaths) == 0 {
		cfg.ScanPaths = []string{"."}
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{"node_modules", ".git", "dist", "build"}
	}
	if cfg.Extraction.Strategy == "" {
		cfg.Extraction.Strategy = "hybrid"
	}
	if len(cfg.Extraction.MarkerTags) == 0 {
		cfg.Extraction.MarkerTags = []string{"gql", "graphql"}
	}
	if len(cfg.Extraction.Include) == 0 {
		cfg.Extraction.Include = []string{"*.js", "*.jsx", "*.ts", "*.tsx"}
	}
	if cfg.Extraction.MaxInlineDepth == 0 {
		cfg.Extraction.MaxInlineDepth = 10
	}
	if cfg.Extraction.MaxVariants == 0 {
		cfg.Extraction.MaxVariants = 64
	}
	if cfg.Extraction.Workers == 0 {
		cfg.Extraction.Workers = 8
	}
	if cfg.Confidence.Automatic == 0 {
		cfg.Confidence.Automatic = 90
	}
	if cfg.Confidence.SemiAutomatic == 0 {
		cfg.Confidence.SemiAutomatic = 70
	}
	if cfg.Validation.Concurrency == 0 {
		cfg.Validation.Concurrency = 4
	}
	if cfg.Validation.Timeout == 0 {
		cfg.Validation.Timeout = 10 * time.Second
	}
	if cfg.Validation.RatePerSec == 0 {
		cfg.Validation.RatePerSec = 10
	}
	if cfg.Rollout.InitialPercentage == 0 {
		cfg.Rollout.InitialPercentage = 5
	}
	if cfg.Rollout.StepPercentage == 0 {
		cfg.Rollout.StepPercentage = 10
	}
	if cfg.Rollout.StepInterval == 0 {
		cfg.Rollout.StepInterval = 5 * time.Minute
	}
	if cfg.Rollout.MaxErrorRate == 0 {
		cfg.Rollout.MaxErrorRate = 0.05
	}
	if cfg.Rollout.MaxLatency == 0 {
		cfg.Rollout.MaxLatency = 2 * time.Second
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}

func validate(cfg *Config) error {
	switch cfg.Extraction.Strategy {
	case "pattern", "structural", "hybrid":
	default:
		return fmt.Errorf("invalid extraction strategy %q (want pattern, structural or hybrid)", cfg.Extraction.Strategy)
	}
	if cfg.Confidence.SemiAutomatic > cfg.Confidence.Automatic {
		return fmt.Errorf("semi_automatic threshold %d must not exceed automatic threshold %d",
			cfg.Confidence.SemiAutomatic, cfg.Confidence.Automatic)
	}
	if cfg.Rollout.StepPercentage < 1 || cfg.Rollout.StepPercentage > 100 {
		return fmt.Errorf("rollout step percentage %d out of range [1,100]", cfg.Rollout.StepPercentage)
	}
	return nil
}
