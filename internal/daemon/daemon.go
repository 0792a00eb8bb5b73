package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"kinescope/internal/capture"
	"kinescope/internal/compression"
	"kinescope/internal/config"
	"kinescope/internal/encoding"
	"kinescope/internal/framepool"
	"kinescope/internal/logging"
	"kinescope/internal/memmon"
	"kinescope/internal/preflight"
	"kinescope/internal/recorder"
	"kinescope/internal/store"
)

const recentAlertLimit = 100

// Daemon is the application root: it owns the store, frame pool, memory
// monitor, recording coordinator, retention schedule, and status API, and
// enforces single-instance execution through a file lock.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	source      capture.Source
	store       *store.Store
	pool        *framepool.Pool
	monitor     *memmon.Monitor
	coordinator *recorder.Coordinator
	retention   *retentionScheduler
	api         *apiServer

	lockPath string
	lock     *flock.Flock

	alertMu      sync.Mutex
	recentAlerts []memmon.Alert

	running   atomic.Bool
	cancel    context.CancelFunc
	alertDone chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                  `json:"running"`
	Recorder     recorder.State        `json:"recorder"`
	SessionID    string                `json:"session_id,omitempty"`
	Memory       *memmon.Snapshot      `json:"memory,omitempty"`
	Pool         framepool.Diagnostics `json:"pool"`
	ChunkCount   int                   `json:"chunk_count"`
	ChunkBytes   int64                 `json:"chunk_bytes"`
	DBPath       string                `json:"db_path"`
	LockFilePath string                `json:"lock_file_path"`
}

// New wires the full dependency graph. The capture source and encoder are
// the only externally supplied collaborators.
func New(cfg *config.Config, source capture.Source, encoder encoding.Encoder, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || source == nil || encoder == nil {
		return nil, errors.New("daemon requires config, capture source, and encoder")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pool := framepool.New(cfg.Capture.BufferCapacity)
	controller := compression.NewController(
		compression.SettingsFromConfig(cfg.Compression),
		cfg.Compression.TargetChunkMB,
		logger,
	)
	monitor := memmon.New(pool, memmon.Options{
		Interval:        time.Duration(cfg.Monitor.SampleIntervalSeconds) * time.Second,
		WarningPercent:  cfg.Monitor.WarningPercent,
		CriticalPercent: cfg.Monitor.CriticalPercent,
		AlertCooldown:   time.Duration(cfg.Monitor.AlertCooldownSeconds) * time.Second,
		ConnStats:       st.ConnectionStats,
	}, logger)

	coordinator := recorder.New(recorder.Deps{
		Config:     cfg.Capture,
		ChunkDir:   cfg.Paths.ChunkDir,
		Source:     source,
		Encoder:    encoder,
		Pool:       pool,
		Store:      st,
		Controller: controller,
		Preflight:  preflight.Gate(cfg, source),
		Hub:        recorder.NewStatusHub(256),
		Logger:     logger,
	})

	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		source:      source,
		store:       st,
		pool:        pool,
		monitor:     monitor,
		coordinator: coordinator,
		lockPath:    filepath.Join(cfg.Paths.LogDir, "kinescoped.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.retention = newRetentionScheduler(cfg.Retention, st, d.logger)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches every subsystem.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another kinescope daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.monitor.Start(runCtx)
	d.alertDone = make(chan struct{})
	go d.consumeAlerts(runCtx, d.alertDone)

	if err := d.coordinator.Start(runCtx); err != nil {
		d.logger.Error("recording failed to start", logging.Error(err))
		// The daemon stays up so the status API can report the error state.
	}

	d.retention.start()
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.teardown()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("kinescope daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts every subsystem and releases the daemon lock. Safe to call
// repeatedly.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.teardown()
	d.running.Store(false)
	d.logger.Info("kinescope daemon stopped")
}

func (d *Daemon) teardown() {
	if d.api != nil {
		d.api.stop()
	}
	d.retention.stop()
	d.coordinator.Stop()
	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.alertDone != nil {
		<-d.alertDone
		d.alertDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and releases the store and capture source.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.source.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// consumeAlerts drains monitor alerts, keeps a bounded history for the API,
// and triggers cleanup on critical leak alerts.
func (d *Daemon) consumeAlerts(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.monitor.Alerts():
			d.recordAlert(alert)
			if alert.Severity == memmon.SeverityCritical && alert.Kind == memmon.KindLeak {
				d.monitor.ForceCleanup()
			}
		}
	}
}

func (d *Daemon) recordAlert(alert memmon.Alert) {
	d.alertMu.Lock()
	defer d.alertMu.Unlock()
	if len(d.recentAlerts) == recentAlertLimit {
		copy(d.recentAlerts, d.recentAlerts[1:])
		d.recentAlerts = d.recentAlerts[:recentAlertLimit-1]
	}
	d.recentAlerts = append(d.recentAlerts, alert)
}

// RecentAlerts returns a copy of the buffered alert history, newest last.
func (d *Daemon) RecentAlerts() []memmon.Alert {
	d.alertMu.Lock()
	defer d.alertMu.Unlock()
	out := make([]memmon.Alert, len(d.recentAlerts))
	copy(out, d.recentAlerts)
	return out
}

// Recorder exposes the coordinator for CLI control paths.
func (d *Daemon) Recorder() *recorder.Coordinator {
	return d.coordinator
}

// Store exposes the persistence layer for read paths.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// RunCleanup performs a manual retention pass.
func (d *Daemon) RunCleanup(ctx context.Context) (store.CleanupResult, error) {
	return d.retention.runOnce(ctx)
}

// Status reports a point-in-time view of the daemon.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Recorder:     d.coordinator.State(),
		SessionID:    d.coordinator.SessionID(),
		Pool:         d.pool.Diagnostics(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if snapshot, ok := d.monitor.Current(); ok {
		status.Memory = &snapshot
	}
	if count, bytes, err := d.store.ChunkTotals(ctx); err == nil {
		status.ChunkCount = count
		status.ChunkBytes = bytes
	}
	return status
}
