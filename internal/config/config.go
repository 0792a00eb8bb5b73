package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	ChunkDir string `toml:"chunk_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Capture contains configuration for the screen capture loop.
type Capture struct {
	FrameIntervalMS      int    `toml:"frame_interval_ms"`
	ChunkDurationMinutes int    `toml:"chunk_duration_minutes"`
	BufferCapacity       int    `toml:"buffer_capacity"`
	DisplayDebounceMS    int    `toml:"display_debounce_ms"`
	RetryMaxAttempts     int    `toml:"retry_max_attempts"`
	MinFreeDiskGB        int    `toml:"min_free_disk_gb"`
	GrabCommand          string `toml:"grab_command"`
	FFmpegBinary         string `toml:"ffmpeg_binary"`
}

// Compression contains the encoder baseline settings the adaptive
// controller starts from.
type Compression struct {
	Width            int    `toml:"width"`
	Height           int    `toml:"height"`
	Codec            string `toml:"codec"`
	BaseBitrateKbps  int    `toml:"base_bitrate_kbps"`
	TargetChunkMB    int    `toml:"target_chunk_mb"`
	KeyframeInterval int    `toml:"keyframe_interval"`
}

// Monitor contains configuration for the memory monitor.
type Monitor struct {
	SampleIntervalSeconds int     `toml:"sample_interval_seconds"`
	WarningPercent        float64 `toml:"warning_percent"`
	CriticalPercent       float64 `toml:"critical_percent"`
	AlertCooldownSeconds  int     `toml:"alert_cooldown_seconds"`
}

// Retention contains configuration for chunk retention cleanup.
type Retention struct {
	Enabled              bool `toml:"enabled"`
	RetentionDays        int  `toml:"retention_days"`
	MaxStorageGB         int  `toml:"max_storage_gb"`
	CleanupIntervalHours int  `toml:"cleanup_interval_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration for the kinescope daemon.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Capture     Capture     `toml:"capture"`
	Compression Compression `toml:"compression"`
	Monitor     Monitor     `toml:"monitor"`
	Retention   Retention   `toml:"retention"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the standard location of the config file.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "kinescope", "config.toml"), nil
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. An empty path uses DefaultConfigPath.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ChunkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Paths.ChunkDir = expandPath(c.Paths.ChunkDir)
	c.Paths.LogDir = expandPath(c.Paths.LogDir)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

func expandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
		}
	}
	return trimmed
}
