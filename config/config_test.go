package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validYAML = `files:
  - /data/train_1.aps
  - /data/train_2.aps
height: 660
width: 512
depth: 1
batch_size: 16
shuffle: true
min_queue_examples: 200
workers: 4
seed: 42
log_every: 10
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Files) != 2 || cfg.Files[0] != "/data/train_1.aps" {
		t.Fatalf("files parsed wrong: %v", cfg.Files)
	}
	if cfg.Height != 660 || cfg.Width != 512 || cfg.Depth != 1 {
		t.Fatalf("shape parsed wrong: (%d,%d,%d)", cfg.Height, cfg.Width, cfg.Depth)
	}
	if cfg.BatchSize != 16 || !cfg.Shuffle || cfg.MinQueueExamples != 200 {
		t.Fatalf("batching knobs parsed wrong: %+v", cfg)
	}
	if cfg.Workers != 4 || cfg.Seed != 42 || cfg.LogEvery != 10 {
		t.Fatalf("runtime knobs parsed wrong: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"no files":          "height: 2\nwidth: 2\ndepth: 1\nbatch_size: 1\n",
		"zero depth":        "files: [a.aps]\nheight: 2\nwidth: 2\ndepth: 0\nbatch_size: 1\n",
		"zero batch":        "files: [a.aps]\nheight: 2\nwidth: 2\ndepth: 1\nbatch_size: 0\n",
		"shuffle no buffer": "files: [a.aps]\nheight: 2\nwidth: 2\ndepth: 1\nbatch_size: 1\nshuffle: true\n",
		"malformed yaml":    "files: [unclosed\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error, got nil", name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.ApplyOverrides(Overrides{BatchSize: 32, Seed: 7})
	if cfg.BatchSize != 32 {
		t.Fatalf("batch size override not applied: %d", cfg.BatchSize)
	}
	if cfg.Seed != 7 {
		t.Fatalf("seed override not applied: %d", cfg.Seed)
	}
	// Zero-valued overrides leave the config untouched.
	if cfg.Workers != 4 || cfg.LogEvery != 10 {
		t.Fatalf("unset overrides clobbered config: %+v", cfg)
	}
}

func TestPipelineConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	pc := cfg.Pipeline()
	if pc.Shape.Height != 660 || pc.Shape.Width != 512 || pc.Shape.Depth != 1 {
		t.Fatalf("pipeline shape = %+v", pc.Shape)
	}
	if pc.BatchSize != 16 || !pc.Shuffle || pc.MinQueueExamples != 200 || pc.Workers != 4 {
		t.Fatalf("pipeline config = %+v", pc)
	}
	if len(pc.Files) != 2 {
		t.Fatalf("pipeline files = %v", pc.Files)
	}
}
