package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kinescope/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.BufferCapacity != 100 {
		t.Fatalf("expected default buffer capacity, got %d", cfg.Capture.BufferCapacity)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[retention]\nenabled = true\nretention_days = 30\nmax_storage_gb = 100\ncleanup_interval_hours = 12\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retention.RetentionDays != 30 {
		t.Fatalf("expected retention_days 30, got %d", cfg.Retention.RetentionDays)
	}
	if cfg.Capture.ChunkDurationMinutes != 15 {
		t.Fatalf("expected default chunk duration preserved, got %d", cfg.Capture.ChunkDurationMinutes)
	}
}

func TestValidateRejectsRetentionBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"days too low", func(c *config.Config) { c.Retention.RetentionDays = 0 }, "retention_days"},
		{"days too high", func(c *config.Config) { c.Retention.RetentionDays = 366 }, "retention_days"},
		{"storage too high", func(c *config.Config) { c.Retention.MaxStorageGB = 1001 }, "max_storage_gb"},
		{"interval too high", func(c *config.Config) { c.Retention.CleanupIntervalHours = 25 }, "cleanup_interval_hours"},
		{"buffer over cap", func(c *config.Config) { c.Capture.BufferCapacity = 101 }, "buffer_capacity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateSkipsRetentionWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Retention.Enabled = false
	cfg.Retention.RetentionDays = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled retention should not be validated: %v", err)
	}
}
