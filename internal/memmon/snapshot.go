package memmon

import "time"

// Snapshot is an immutable point-in-time view of memory pressure plus the
// diagnostics the monitor reads from its collaborators. One is produced per
// sampling tick.
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	TotalMB      float64   `json:"total_mb"`
	UsedMB       float64   `json:"used_mb"`
	AvailableMB  float64   `json:"available_mb"`
	UsagePercent float64   `json:"usage_percent"`
	BufferCount  int       `json:"buffer_count"`
	Goroutines   int       `json:"goroutines"`
	// StoreConnections is optional: populated only when the monitor is
	// wired to a store whose driver exposes pool statistics.
	StoreConnections *int `json:"store_connections,omitempty"`
}

// Trend summarizes usage movement over a trailing window.
type Trend struct {
	Samples      int
	Window       time.Duration
	StartPercent float64
	EndPercent   float64
	DeltaPercent float64
}
