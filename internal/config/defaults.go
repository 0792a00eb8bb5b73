package config

import (
	"os"
	"path/filepath"
)

// Default returns the baseline configuration used when no file is present.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataRoot := filepath.Join(home, ".local", "share", "kinescope")

	return Config{
		Paths: Paths{
			ChunkDir: filepath.Join(dataRoot, "chunks"),
			LogDir:   filepath.Join(dataRoot, "logs"),
			APIBind:  "127.0.0.1:7460",
		},
		Capture: Capture{
			FrameIntervalMS:      1000,
			ChunkDurationMinutes: 15,
			BufferCapacity:       100,
			DisplayDebounceMS:    500,
			RetryMaxAttempts:     3,
			MinFreeDiskGB:        2,
		},
		Compression: Compression{
			Width:            1920,
			Height:           1080,
			Codec:            "h264",
			BaseBitrateKbps:  2000,
			TargetChunkMB:    50,
			KeyframeInterval: 60,
		},
		Monitor: Monitor{
			SampleIntervalSeconds: 10,
			WarningPercent:        75,
			CriticalPercent:       90,
			AlertCooldownSeconds:  60,
		},
		Retention: Retention{
			Enabled:              true,
			RetentionDays:        7,
			MaxStorageGB:         50,
			CleanupIntervalHours: 6,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
