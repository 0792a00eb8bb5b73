package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Out-of-range values are
// rejected rather than clamped so a bad config never silently degrades.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ChunkDir) == "" {
		return errors.New("paths.chunk_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if err := ensurePositiveMap(map[string]int{
		"capture.frame_interval_ms":      c.Capture.FrameIntervalMS,
		"capture.chunk_duration_minutes": c.Capture.ChunkDurationMinutes,
		"capture.display_debounce_ms":    c.Capture.DisplayDebounceMS,
		"capture.retry_max_attempts":     c.Capture.RetryMaxAttempts,
		"capture.min_free_disk_gb":       c.Capture.MinFreeDiskGB,
	}); err != nil {
		return err
	}
	if c.Capture.BufferCapacity < 1 || c.Capture.BufferCapacity > 100 {
		return errors.New("capture.buffer_capacity must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateCompression() error {
	if err := ensurePositiveMap(map[string]int{
		"compression.width":             c.Compression.Width,
		"compression.height":            c.Compression.Height,
		"compression.base_bitrate_kbps": c.Compression.BaseBitrateKbps,
		"compression.target_chunk_mb":   c.Compression.TargetChunkMB,
		"compression.keyframe_interval": c.Compression.KeyframeInterval,
	}); err != nil {
		return err
	}
	if strings.TrimSpace(c.Compression.Codec) == "" {
		return errors.New("compression.codec must be set")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.SampleIntervalSeconds <= 0 {
		return errors.New("monitor.sample_interval_seconds must be positive")
	}
	if c.Monitor.WarningPercent <= 0 || c.Monitor.WarningPercent >= 100 {
		return errors.New("monitor.warning_percent must be between 0 and 100")
	}
	if c.Monitor.CriticalPercent <= c.Monitor.WarningPercent || c.Monitor.CriticalPercent > 100 {
		return errors.New("monitor.critical_percent must be greater than monitor.warning_percent and at most 100")
	}
	if c.Monitor.AlertCooldownSeconds <= 0 {
		return errors.New("monitor.alert_cooldown_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if !c.Retention.Enabled {
		return nil
	}
	if c.Retention.RetentionDays < 1 || c.Retention.RetentionDays > 365 {
		return errors.New("retention.retention_days must be between 1 and 365")
	}
	if c.Retention.MaxStorageGB < 1 || c.Retention.MaxStorageGB > 1000 {
		return errors.New("retention.max_storage_gb must be between 1 and 1000")
	}
	if c.Retention.CleanupIntervalHours < 1 || c.Retention.CleanupIntervalHours > 24 {
		return errors.New("retention.cleanup_interval_hours must be between 1 and 24")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
