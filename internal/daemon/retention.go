package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"kinescope/internal/config"
	"kinescope/internal/logging"
	"kinescope/internal/store"
)

const bytesPerGiB = 1 << 30

// retentionScheduler runs periodic chunk cleanup on a cron schedule.
type retentionScheduler struct {
	cfg    config.Retention
	store  *store.Store
	logger *slog.Logger
	cron   *cron.Cron
}

func newRetentionScheduler(cfg config.Retention, st *store.Store, logger *slog.Logger) *retentionScheduler {
	return &retentionScheduler{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "retention"),
	}
}

func (r *retentionScheduler) start() {
	if !r.cfg.Enabled {
		r.logger.Info("retention cleanup disabled")
		return
	}
	r.cron = cron.New()
	schedule := fmt.Sprintf("@every %dh", r.cfg.CleanupIntervalHours)
	_, err := r.cron.AddFunc(schedule, func() {
		if _, err := r.runOnce(context.Background()); err != nil {
			r.logger.Error("scheduled cleanup failed", logging.Error(err))
		}
	})
	if err != nil {
		r.logger.Error("failed to schedule retention cleanup", logging.Error(err))
		r.cron = nil
		return
	}
	r.cron.Start()
	r.logger.Info("retention cleanup scheduled",
		logging.String("schedule", schedule),
		logging.Int("retention_days", r.cfg.RetentionDays),
		logging.Int("max_storage_gb", r.cfg.MaxStorageGB),
	)
}

func (r *retentionScheduler) stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}

func (r *retentionScheduler) runOnce(ctx context.Context) (store.CleanupResult, error) {
	result, err := RunRetention(ctx, r.cfg, r.store)
	if err != nil {
		return result, err
	}
	r.logger.Info("retention pass completed",
		logging.Int("chunks_deleted", result.ChunksDeleted),
		logging.String("bytes_freed", humanize.IBytes(uint64(result.BytesFreed))),
	)
	return result, nil
}

// RunRetention performs one full retention pass: age-based cleanup followed
// by the storage ceiling.
func RunRetention(ctx context.Context, cfg config.Retention, st *store.Store) (store.CleanupResult, error) {
	result, err := st.CleanupOldChunks(ctx, cfg.RetentionDays)
	if err != nil {
		return result, err
	}
	if cfg.MaxStorageGB > 0 {
		limitResult, err := st.EnforceStorageLimit(ctx, int64(cfg.MaxStorageGB)*bytesPerGiB)
		if err != nil {
			return result, err
		}
		result.ChunksFound += limitResult.ChunksFound
		result.ChunksDeleted += limitResult.ChunksDeleted
		result.BytesFreed += limitResult.BytesFreed
		result.MissingFiles += limitResult.MissingFiles
	}
	return result, nil
}
