package memmon

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"kinescope/internal/framepool"
	"kinescope/internal/logging"
)

const (
	historyLimit     = 360
	alertChannelSize = 32
	mbPerByte        = 1.0 / (1024 * 1024)
)

// SystemStats are raw memory counters from the host.
type SystemStats struct {
	TotalMB     float64
	UsedMB      float64
	AvailableMB float64
}

// SampleFunc supplies system memory counters. The default reads gopsutil;
// tests inject their own.
type SampleFunc func() (SystemStats, error)

// ConnStatsFunc exposes store connection-pool statistics when available.
type ConnStatsFunc func() sql.DBStats

// Options configure a Monitor.
type Options struct {
	Interval        time.Duration
	WarningPercent  float64
	CriticalPercent float64
	AlertCooldown   time.Duration
	Sample          SampleFunc
	ConnStats       ConnStatsFunc
}

// Monitor samples memory pressure on its own timer loop. It only reads from
// its collaborators (pool diagnostics, store pool stats) and never takes a
// lock the recording path takes.
type Monitor struct {
	logger    *slog.Logger
	pool      *framepool.Pool
	opts      Options
	debounce  *debouncer
	alerts    chan Alert
	alertsMu  sync.Mutex
	historyMu sync.Mutex
	history   []Snapshot

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a monitor. Zero option fields fall back to defaults
// (10s interval, 75/90 thresholds, 60s cooldown, gopsutil sampling).
func New(pool *framepool.Pool, opts Options, logger *slog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.WarningPercent <= 0 {
		opts.WarningPercent = 75
	}
	if opts.CriticalPercent <= 0 {
		opts.CriticalPercent = 90
	}
	if opts.AlertCooldown <= 0 {
		opts.AlertCooldown = time.Minute
	}
	if opts.Sample == nil {
		opts.Sample = systemSample
	}
	return &Monitor{
		logger:   logging.NewComponentLogger(logger, "memmon"),
		pool:     pool,
		opts:     opts,
		debounce: newDebouncer(opts.AlertCooldown),
		alerts:   make(chan Alert, alertChannelSize),
	}
}

func systemSample() (SystemStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return SystemStats{}, fmt.Errorf("virtual memory: %w", err)
	}
	return SystemStats{
		TotalMB:     float64(vm.Total) * mbPerByte,
		UsedMB:      float64(vm.Used) * mbPerByte,
		AvailableMB: float64(vm.Available) * mbPerByte,
	}, nil
}

// Alerts delivers memory alerts. The channel is bounded; when a consumer
// falls behind the oldest undelivered alert is dropped.
func (m *Monitor) Alerts() <-chan Alert {
	return m.alerts
}

// Start launches the sampling loop. Starting an already-running monitor is
// a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(runCtx, m.done)
	m.logger.Info("memory monitoring started", logging.Duration("interval", m.opts.Interval))
}

// Stop halts the sampling loop. It is idempotent and safe to call on a
// monitor that was never started.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.runMu.Unlock()

	cancel()
	<-done
	m.logger.Info("memory monitoring stopped")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.sampleOnce(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sampleOnce(now)
		}
	}
}

// sampleOnce collects one snapshot, records it, and evaluates alert policy.
func (m *Monitor) sampleOnce(now time.Time) {
	stats, err := m.opts.Sample()
	if err != nil {
		m.logger.Warn("memory sample failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "memory_sample_failed"),
		)
		return
	}

	snapshot := m.buildSnapshot(now, stats)
	m.recordSnapshot(snapshot)
	m.evaluateThresholds(snapshot)
	m.evaluateLeak(snapshot, now)
}

func (m *Monitor) buildSnapshot(now time.Time, stats SystemStats) Snapshot {
	snapshot := Snapshot{
		Timestamp:   now,
		TotalMB:     stats.TotalMB,
		UsedMB:      stats.UsedMB,
		AvailableMB: stats.AvailableMB,
		Goroutines:  runtime.NumGoroutine(),
	}
	if total := stats.UsedMB + stats.AvailableMB; total > 0 {
		snapshot.UsagePercent = stats.UsedMB / total * 100
	}
	if m.pool != nil {
		snapshot.BufferCount = m.pool.Diagnostics().Count
	}
	if m.opts.ConnStats != nil {
		open := m.opts.ConnStats().OpenConnections
		snapshot.StoreConnections = &open
	}
	return snapshot
}

func (m *Monitor) recordSnapshot(snapshot Snapshot) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	if len(m.history) == historyLimit {
		copy(m.history, m.history[1:])
		m.history = m.history[:historyLimit-1]
	}
	m.history = append(m.history, snapshot)
}

func (m *Monitor) evaluateThresholds(snapshot Snapshot) {
	var severity Severity
	var action string
	switch {
	case snapshot.UsagePercent >= m.opts.CriticalPercent:
		severity = SeverityCritical
		action = "pause processing, clear the frame pool, or restart the daemon"
	case snapshot.UsagePercent >= m.opts.WarningPercent:
		severity = SeverityWarning
		action = "reduce capture rate or lower compression quality"
	default:
		return
	}
	if !m.debounce.allow(KindThreshold, severity, snapshot.Timestamp) {
		return
	}
	m.publish(Alert{
		Severity:          severity,
		Kind:              KindThreshold,
		Snapshot:          snapshot,
		Message:           fmt.Sprintf("memory usage at %.1f%%", snapshot.UsagePercent),
		RecommendedAction: action,
	})
}

func (m *Monitor) evaluateLeak(snapshot Snapshot, now time.Time) {
	m.historyMu.Lock()
	history := make([]Snapshot, len(m.history))
	copy(history, m.history)
	m.historyMu.Unlock()

	growth, window, leaking := detectLeak(history, now)
	if !leaking {
		return
	}
	if !m.debounce.allow(KindLeak, SeverityCritical, now) {
		return
	}
	m.publish(Alert{
		Severity:          SeverityCritical,
		Kind:              KindLeak,
		Snapshot:          snapshot,
		Message:           fmt.Sprintf("sustained memory growth of %.1f%% over %s", growth*100, window.Round(time.Second)),
		RecommendedAction: "pause processing and clear the frame pool; restart if growth continues",
		GrowthRate:        growth,
		Window:            window,
	})
}

func (m *Monitor) publish(alert Alert) {
	m.logger.Warn("memory alert",
		logging.String("severity", string(alert.Severity)),
		logging.String("kind", string(alert.Kind)),
		logging.Float64("usage_percent", alert.Snapshot.UsagePercent),
		logging.String("action", alert.RecommendedAction),
	)
	m.alertsMu.Lock()
	defer m.alertsMu.Unlock()
	for {
		select {
		case m.alerts <- alert:
			return
		default:
			// Drop the oldest undelivered alert to make room.
			select {
			case <-m.alerts:
			default:
			}
		}
	}
}

// Current returns the most recent snapshot, or false when none exists yet.
func (m *Monitor) Current() (Snapshot, bool) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	if len(m.history) == 0 {
		return Snapshot{}, false
	}
	return m.history[len(m.history)-1], true
}

// TrendOver summarizes usage movement across the trailing window.
func (m *Monitor) TrendOver(lastMinutes int) Trend {
	cutoff := time.Now().Add(-time.Duration(lastMinutes) * time.Minute)

	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	start := 0
	for start < len(m.history) && m.history[start].Timestamp.Before(cutoff) {
		start++
	}
	window := m.history[start:]
	if len(window) == 0 {
		return Trend{}
	}
	first := window[0]
	last := window[len(window)-1]
	return Trend{
		Samples:      len(window),
		Window:       last.Timestamp.Sub(first.Timestamp),
		StartPercent: first.UsagePercent,
		EndPercent:   last.UsagePercent,
		DeltaPercent: last.UsagePercent - first.UsagePercent,
	}
}

// ForceCleanup releases every pooled frame and prompts the runtime to
// return memory. Used as the critical-alert mitigation path.
func (m *Monitor) ForceCleanup() {
	if m.pool != nil {
		m.pool.ReleaseAll()
	}
	runtime.GC()
	m.logger.Info("forced cleanup completed")
}
