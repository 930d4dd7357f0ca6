// Package config handles configuration loading for a fuzzing campaign.
// Grounded on internal/scenario/parser.go's yaml.v3 decode idiom,
// generalized from scenario flows to the fuzzer's own option set.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the option set the core fuzzer recognizes, per spec.md
// §6: argv, directories, timing, and worker topology. Anything outside
// this set (reporting format, UI theme, etc.) belongs to the ambient
// CLI/UI layers, not here.
type Config struct {
	Argv             []string `yaml:"argv"`
	SeedsDir         string   `yaml:"seeds_dir"`
	CrashDir         string   `yaml:"crash_dir"`
	CorpusDir        string   `yaml:"corpus_dir"`
	TimeoutMs        int      `yaml:"timeout_ms"`
	MemoryLimitBytes int64    `yaml:"memory_limit_bytes"`
	MaxExecutions    int64    `yaml:"max_executions"`
	MaxDurationS     int64    `yaml:"max_duration_s"`
	Workers          int      `yaml:"workers"`
	SyncIntervalS    int      `yaml:"sync_interval_s"`
	MinimizeCrashes  bool     `yaml:"minimize_crashes"`
	Sanitizers       bool     `yaml:"sanitizers"`
	SyncRoot         string   `yaml:"sync_root"`
	Protocol         string   `yaml:"protocol"` // "", "http", "dns", "smtp", "custom"
	SeedWatchS       int      `yaml:"seed_watch_s"`
}

// Default returns the option set's documented defaults.
func Default() *Config {
	return &Config{
		TimeoutMs:        5000,
		MemoryLimitBytes: 1 << 30,
		Workers:          1,
		SyncIntervalS:    5,
		MinimizeCrashes:  true,
		Sanitizers:       true,
		SyncRoot:         os.TempDir(),
		CrashDir:         "crashes",
		SeedWatchS:       10,
	}
}

// Load reads path, merges it over Default(), and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the core loop depends on before a
// campaign starts.
func (c *Config) Validate() error {
	if len(c.Argv) == 0 {
		return fmt.Errorf("config: argv must name the target program")
	}
	if c.SeedsDir == "" {
		return fmt.Errorf("config: seeds_dir is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	switch c.Protocol {
	case "", "http", "dns", "smtp", "custom":
	default:
		return fmt.Errorf("config: unknown protocol %q", c.Protocol)
	}
	return nil
}
