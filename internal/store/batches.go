package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveBatch creates an analysis batch and all of its chunk associations in
// one transaction. If any referenced chunk id does not exist the entire
// operation rolls back and ErrBatchIntegrity is returned; no partial batch
// is ever observable.
func (s *Store) SaveBatch(ctx context.Context, startTS, endTS time.Time, chunkIDs []int64) (*Batch, error) {
	if len(chunkIDs) == 0 {
		return nil, fmt.Errorf("save batch: no chunk ids: %w", ErrBatchIntegrity)
	}

	var batchID int64
	err := s.withWrite(ctx, func() error {
		tx, txErr := s.db.BeginTx(ensureContext(ctx), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		placeholders := makePlaceholders(len(chunkIDs))
		args := make([]any, len(chunkIDs))
		for i, id := range chunkIDs {
			args[i] = id
		}
		var present int
		row := tx.QueryRow(`SELECT COUNT(1) FROM chunks WHERE id IN (`+placeholders+`)`, args...)
		if scanErr := row.Scan(&present); scanErr != nil {
			return scanErr
		}
		if present != len(chunkIDs) {
			return fmt.Errorf("%d of %d chunks missing: %w", len(chunkIDs)-present, len(chunkIDs), ErrBatchIntegrity)
		}

		now := formatTime(time.Now())
		res, execErr := tx.Exec(
			`INSERT INTO batches (start_ts, end_ts, status, created_at) VALUES (?, ?, ?, ?)`,
			formatTime(startTS),
			formatTime(endTS),
			BatchPending,
			now,
		)
		if execErr != nil {
			return execErr
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return idErr
		}

		for _, chunkID := range chunkIDs {
			if _, execErr := tx.Exec(`INSERT INTO batch_chunks (batch_id, chunk_id) VALUES (?, ?)`, id, chunkID); execErr != nil {
				return execErr
			}
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return commitErr
		}
		batchID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBatchIntegrity) {
			return nil, fmt.Errorf("save batch: %w", err)
		}
		return nil, fmt.Errorf("save batch: %w", err)
	}
	return s.GetBatch(ctx, batchID)
}

// GetBatch fetches a batch and its chunk associations, returning nil when
// absent.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT id, start_ts, end_ts, status, created_at FROM batches WHERE id = ?`, id)

	var (
		batch      Batch
		startRaw   string
		endRaw     string
		statusStr  string
		createdRaw string
	)
	if err := row.Scan(&batch.ID, &startRaw, &endRaw, &statusStr, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	batch.Status = BatchStatus(statusStr)
	if ts, err := parseTimeString(startRaw); err == nil {
		batch.StartTS = ts
	}
	if ts, err := parseTimeString(endRaw); err == nil {
		batch.EndTS = ts
	}
	if ts, err := parseTimeString(createdRaw); err == nil {
		batch.CreatedAt = ts
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM batch_chunks WHERE batch_id = ? ORDER BY chunk_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get batch chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID int64
		if err := rows.Scan(&chunkID); err != nil {
			return nil, err
		}
		batch.ChunkIDs = append(batch.ChunkIDs, chunkID)
	}
	return &batch, rows.Err()
}

// MarkBatchCompleted records that the analysis consumer finished a batch.
func (s *Store) MarkBatchCompleted(ctx context.Context, id int64) error {
	res, err := s.execWrite(
		ctx,
		`UPDATE batches SET status = ? WHERE id = ? AND status = ?`,
		BatchCompleted,
		id,
		BatchPending,
	)
	if err != nil {
		return fmt.Errorf("mark batch completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("batch %d not pending: %w", id, ErrInvalidTransition)
	}
	return nil
}

// SaveSummary inserts a downstream analysis summary referencing a chunk file.
func (s *Store) SaveSummary(ctx context.Context, batchID int64, chunkFilePath, body string) (int64, error) {
	var id int64
	err := s.withWrite(ctx, func() error {
		res, execErr := s.db.ExecContext(
			ensureContext(ctx),
			`INSERT INTO summaries (batch_id, chunk_file_path, body, created_at) VALUES (?, ?, ?, ?)`,
			batchID,
			chunkFilePath,
			body,
			formatTime(time.Now()),
		)
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("save summary: %w", err)
	}
	return id, nil
}

// GetSummary fetches a summary row, returning nil when absent.
func (s *Store) GetSummary(ctx context.Context, id int64) (*Summary, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, COALESCE(batch_id, 0), COALESCE(chunk_file_path, ''), COALESCE(body, ''), created_at FROM summaries WHERE id = ?`,
		id,
	)
	var (
		summary    Summary
		createdRaw string
	)
	if err := row.Scan(&summary.ID, &summary.BatchID, &summary.ChunkFilePath, &summary.Body, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if ts, err := parseTimeString(createdRaw); err == nil {
		summary.CreatedAt = ts
	}
	return &summary, nil
}
