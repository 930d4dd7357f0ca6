package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuzz.yaml")
	yaml := "argv: [\"/bin/target\", \"@@\"]\nseeds_dir: ./seeds\nworkers: 4\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 4 {
		t.Fatalf("expected workers override to apply, got %d", cfg.Workers)
	}
	if cfg.TimeoutMs != 5000 {
		t.Fatalf("expected default timeout_ms to survive the merge, got %d", cfg.TimeoutMs)
	}
	if cfg.MinimizeCrashes != true {
		t.Fatalf("expected default minimize_crashes to survive the merge")
	}
}

func TestValidateRejectsMissingArgv(t *testing.T) {
	cfg := Default()
	cfg.SeedsDir = "./seeds"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error when argv is empty")
	}
}

func TestValidateRejectsUnknownProtocol(t *testing.T) {
	cfg := Default()
	cfg.Argv = []string{"/bin/target"}
	cfg.SeedsDir = "./seeds"
	cfg.Protocol = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an unrecognized protocol")
	}
}
