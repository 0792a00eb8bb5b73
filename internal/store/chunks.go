package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"kinescope/internal/logging"
)

const chunkColumns = "id, file_path, start_ts, end_ts, size_bytes, status, created_at, updated_at"

// RegisterChunk inserts a pending chunk record for a capture that just
// started writing to filePath.
func (s *Store) RegisterChunk(ctx context.Context, filePath string, startTS, endTS time.Time) (*Chunk, error) {
	now := formatTime(time.Now())

	var id int64
	err := s.withWrite(ctx, func() error {
		res, execErr := s.db.ExecContext(
			ensureContext(ctx),
			`INSERT INTO chunks (file_path, start_ts, end_ts, size_bytes, status, created_at, updated_at)
             VALUES (?, ?, ?, 0, ?, ?, ?)`,
			filePath,
			formatTime(startTS),
			formatTime(endTS),
			ChunkPending,
			now,
			now,
		)
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("register chunk: %w", err)
	}
	return s.GetChunk(ctx, id)
}

// GetChunk fetches a chunk by id, returning nil when absent.
func (s *Store) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return chunk, nil
}

// MarkCompleted transitions a pending chunk to completed and records its
// final size. Completed and failed are terminal; any other transition is
// rejected.
func (s *Store) MarkCompleted(ctx context.Context, id int64, sizeBytes int64) error {
	res, err := s.execWrite(
		ctx,
		`UPDATE chunks SET status = ?, size_bytes = ?, updated_at = ? WHERE id = ? AND status = ?`,
		ChunkCompleted,
		sizeBytes,
		formatTime(time.Now()),
		id,
		ChunkPending,
	)
	if err != nil {
		return fmt.Errorf("mark chunk completed: %w", err)
	}
	return s.checkTransitionResult(ctx, res, id)
}

// MarkFailed discards a pending chunk, deleting its record and file so no
// orphaned artifacts remain. The status check and the delete run as one
// guarded write so a concurrent MarkCompleted cannot slip in between them.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	var filePath string
	err := s.withWrite(ctx, func() error {
		row := s.db.QueryRowContext(ensureContext(ctx), `SELECT file_path, status FROM chunks WHERE id = ?`, id)
		var status ChunkStatus
		if scanErr := row.Scan(&filePath, &status); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return fmt.Errorf("chunk %d: %w", id, ErrChunkNotFound)
			}
			return scanErr
		}
		if status != ChunkPending {
			return fmt.Errorf("chunk %d is %s: %w", id, status, ErrInvalidTransition)
		}
		res, execErr := s.db.ExecContext(ensureContext(ctx), `DELETE FROM chunks WHERE id = ? AND status = ?`, id, ChunkPending)
		if execErr != nil {
			return execErr
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return affErr
		}
		if affected == 0 {
			return fmt.Errorf("chunk %d is no longer pending: %w", id, ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark chunk failed: %w", err)
	}

	if removeErr := os.Remove(filePath); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		s.logger.Warn("failed to remove chunk file",
			logging.Int64(logging.FieldChunkID, id),
			logging.String("file", filePath),
			logging.Error(removeErr),
		)
	}
	return nil
}

// FetchUnprocessedChunks returns completed chunks with no batch association
// that started before olderThan, ordered by start time.
func (s *Store) FetchUnprocessedChunks(ctx context.Context, olderThan time.Time) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+chunkColumns+` FROM chunks
         WHERE status = ?
           AND start_ts < ?
           AND id NOT IN (SELECT chunk_id FROM batch_chunks)
         ORDER BY start_ts`,
		ChunkCompleted,
		formatTime(olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// ChunkTotals reports the count and byte volume of stored chunks.
func (s *Store) ChunkTotals(ctx context.Context) (count int, bytes int64, err error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1), COALESCE(SUM(size_bytes), 0) FROM chunks`)
	if err := row.Scan(&count, &bytes); err != nil {
		return 0, 0, fmt.Errorf("chunk totals: %w", err)
	}
	return count, bytes, nil
}

func (s *Store) checkTransitionResult(ctx context.Context, res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	chunk, err := s.GetChunk(ctx, id)
	if err != nil {
		return err
	}
	if chunk == nil {
		return fmt.Errorf("chunk %d: %w", id, ErrChunkNotFound)
	}
	return fmt.Errorf("chunk %d is %s: %w", id, chunk.Status, ErrInvalidTransition)
}

func scanChunk(scanner interface{ Scan(dest ...any) error }) (*Chunk, error) {
	var (
		id         int64
		filePath   string
		startRaw   string
		endRaw     string
		sizeBytes  int64
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &filePath, &startRaw, &endRaw, &sizeBytes, &statusStr, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	chunk := &Chunk{
		ID:        id,
		FilePath:  filePath,
		SizeBytes: sizeBytes,
		Status:    ChunkStatus(statusStr),
	}
	if ts, err := parseTimeString(startRaw); err == nil {
		chunk.StartTS = ts
	}
	if ts, err := parseTimeString(endRaw); err == nil {
		chunk.EndTS = ts
	}
	if ts, err := parseTimeString(createdRaw); err == nil {
		chunk.CreatedAt = ts
	}
	if ts, err := parseTimeString(updatedRaw); err == nil {
		chunk.UpdatedAt = ts
	}
	return chunk, nil
}
