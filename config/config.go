package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Noofbiz/apsFeed/pipeline"
	"github.com/Noofbiz/apsFeed/records"
)

// Config captures the runtime knobs for a feed run, loaded from YAML with
// optional CLI overrides layered on top.
type Config struct {
	Files            []string `yaml:"files"`
	Height           int      `yaml:"height"`
	Width            int      `yaml:"width"`
	Depth            int      `yaml:"depth"`
	TargetHeight     int      `yaml:"target_height"`
	TargetWidth      int      `yaml:"target_width"`
	BatchSize        int      `yaml:"batch_size"`
	Shuffle          bool     `yaml:"shuffle"`
	MinQueueExamples int      `yaml:"min_queue_examples"`
	Workers          int      `yaml:"workers"`
	Cycle            bool     `yaml:"cycle"`
	FlushPartial     bool     `yaml:"flush_partial"`
	StrictFraming    bool     `yaml:"strict_framing"`
	Seed             int64    `yaml:"seed"`
	LogEvery         int      `yaml:"log_every"`
}

// Overrides captures CLI supplied values; zero values leave the config
// untouched.
type Overrides struct {
	Files     []string
	BatchSize int
	Workers   int
	Seed      int64
	LogEvery  int
}

// Load reads and validates a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if len(o.Files) > 0 {
		c.Files = o.Files
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.Files) == 0 {
		return errors.New("at least one input file must be listed")
	}
	if c.Height <= 0 || c.Width <= 0 || c.Depth <= 0 {
		return fmt.Errorf("height, width and depth must be > 0 (got %d,%d,%d)", c.Height, c.Width, c.Depth)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Shuffle && c.MinQueueExamples < 1 {
		return fmt.Errorf("min_queue_examples must be >= 1 when shuffling (got %d)", c.MinQueueExamples)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative (got %d)", c.Workers)
	}
	return nil
}

// Pipeline converts the file config into a pipeline.Config.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Files:            c.Files,
		Shape:            records.ImageShape{Height: c.Height, Width: c.Width, Depth: c.Depth},
		TargetHeight:     c.TargetHeight,
		TargetWidth:      c.TargetWidth,
		BatchSize:        c.BatchSize,
		Shuffle:          c.Shuffle,
		MinQueueExamples: c.MinQueueExamples,
		Workers:          c.Workers,
		Cycle:            c.Cycle,
		FlushPartial:     c.FlushPartial,
		StrictFraming:    c.StrictFraming,
		Seed:             c.Seed,
		LogEvery:         c.LogEvery,
	}
}
