package memmon

import (
	"sync"
	"time"
)

// Severity ranks memory alerts.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertKind distinguishes threshold breaches from leak detection.
type AlertKind string

const (
	KindThreshold AlertKind = "memory_threshold"
	KindLeak      AlertKind = "memory_leak"
)

// Alert is an immutable memory alert. GrowthRate and Window are populated
// only for leak alerts.
type Alert struct {
	Severity          Severity      `json:"severity"`
	Kind              AlertKind     `json:"kind"`
	Snapshot          Snapshot      `json:"snapshot"`
	Message           string        `json:"message"`
	RecommendedAction string        `json:"recommended_action,omitempty"`
	GrowthRate        float64       `json:"growth_rate,omitempty"`
	Window            time.Duration `json:"window,omitempty"`
}

// debouncer suppresses repeated alerts of the same kind and severity inside
// a cooldown window so a sustained breach does not spam.
type debouncer struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

func newDebouncer(cooldown time.Duration) *debouncer {
	return &debouncer{cooldown: cooldown, last: make(map[string]time.Time)}
}

func (d *debouncer) allow(kind AlertKind, severity Severity, now time.Time) bool {
	key := string(kind) + "/" + string(severity)
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.last[key] = now
	return true
}
