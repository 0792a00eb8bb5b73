package compression

import (
	"log/slog"
	"sync"
	"time"

	"kinescope/internal/logging"
)

const (
	analysisWindow    = 4
	sizeTolerance     = 0.10
	adjustmentStep    = 0.1
	historyLimit      = 100
	bytesPerMebibyte  = 1024 * 1024
	defaultTargetMiB  = 50
	componentLogLabel = "compression"
)

// AdjustmentRecord captures one multiplier change for diagnostics. History
// never feeds back into control decisions.
type AdjustmentRecord struct {
	At            time.Time
	AvgChunkBytes int64
	TargetBytes   int64
	OldMultiplier float64
	NewMultiplier float64
}

// Controller observes completed-chunk sizes and nudges the bitrate
// multiplier toward the target chunk size. Decisions use only the current
// analysis window of the last few chunks, keeping the loop stable and
// explainable.
type Controller struct {
	mu       sync.Mutex
	logger   *slog.Logger
	settings Settings
	target   int64
	window   []int64
	history  []AdjustmentRecord
}

// NewController builds a controller around baseline settings and a target
// chunk size in mebibytes.
func NewController(settings Settings, targetChunkMB int, logger *slog.Logger) *Controller {
	if targetChunkMB <= 0 {
		targetChunkMB = defaultTargetMiB
	}
	settings.Multiplier = clampMultiplier(settings.Multiplier)
	return &Controller{
		logger:   logging.NewComponentLogger(logger, componentLogLabel),
		settings: settings,
		target:   int64(targetChunkMB) * bytesPerMebibyte,
		window:   make([]int64, 0, analysisWindow),
	}
}

// Settings returns the current settings snapshot.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// AnalyzeAndAdjust records a completed chunk size and, once a full analysis
// window is observed, adjusts the multiplier when the average deviates from
// the target by more than the tolerance. It returns the new settings and
// true only when an adjustment happened.
func (c *Controller) AnalyzeAndAdjust(chunkSizeBytes int64) (Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, chunkSizeBytes)
	if len(c.window) < analysisWindow {
		return c.settings, false
	}

	var sum int64
	for _, size := range c.window {
		sum += size
	}
	avg := sum / int64(len(c.window))
	// The window resets after every evaluation so one oversized burst
	// cannot trigger repeated steps.
	c.window = c.window[:0]

	deviation := float64(avg-c.target) / float64(c.target)
	if deviation <= sizeTolerance && deviation >= -sizeTolerance {
		return c.settings, false
	}

	old := c.settings.Multiplier
	next := old
	if deviation > 0 {
		next -= adjustmentStep
	} else {
		next += adjustmentStep
	}
	next = clampMultiplier(next)
	if next == old {
		return c.settings, false
	}

	c.settings.Multiplier = next
	c.appendHistoryLocked(AdjustmentRecord{
		At:            time.Now().UTC(),
		AvgChunkBytes: avg,
		TargetBytes:   c.target,
		OldMultiplier: old,
		NewMultiplier: next,
	})
	c.logger.Info("bitrate multiplier adjusted",
		logging.Float64("old_multiplier", old),
		logging.Float64("new_multiplier", next),
		logging.Int64("avg_chunk_bytes", avg),
		logging.Int64("target_bytes", c.target),
	)
	return c.settings, true
}

// History returns a copy of the adjustment records, newest last.
func (c *Controller) History() []AdjustmentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AdjustmentRecord, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Controller) appendHistoryLocked(rec AdjustmentRecord) {
	if len(c.history) == historyLimit {
		copy(c.history, c.history[1:])
		c.history = c.history[:historyLimit-1]
	}
	c.history = append(c.history, rec)
}
