package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("WORKER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg := LoadConfig(nil)
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v; want defaults", cfg)
	}
}

func TestLoadConfigReadsFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	raw := []byte("obscalc_workers: 8\npoll_interval: 250ms\nbackoff:\n  initial: 30s\n  multiplier: 3\n  max: 10m\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WORKER_CONFIG", path)
	t.Setenv("OBSCALC_WORKERS", "2")

	cfg := LoadConfig(nil)
	if cfg.ObscalcWorkers != 2 {
		t.Errorf("obscalc workers = %d; want env override 2", cfg.ObscalcWorkers)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %v; want 250ms", cfg.PollInterval)
	}
	if cfg.Backoff.Initial != 30*time.Second || cfg.Backoff.Max != 10*time.Minute {
		t.Errorf("backoff = %+v; want 30s initial, 10m max", cfg.Backoff)
	}
	if cfg.BlindOffsetWorkers != 1 {
		t.Errorf("blind offset workers = %d; want default 1", cfg.BlindOffsetWorkers)
	}
	if cfg.CalcTimeout != 2*time.Minute {
		t.Errorf("calc timeout = %v; want default 2m", cfg.CalcTimeout)
	}
}

func TestLoadConfigClampsWorkerMinimums(t *testing.T) {
	t.Setenv("WORKER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OBSCALC_WORKERS", "0")
	t.Setenv("BLIND_OFFSET_WORKERS", "-2")

	cfg := LoadConfig(nil)
	if cfg.ObscalcWorkers != 1 || cfg.BlindOffsetWorkers != 1 {
		t.Fatalf("workers = %d/%d; want clamped to 1/1", cfg.ObscalcWorkers, cfg.BlindOffsetWorkers)
	}
}
