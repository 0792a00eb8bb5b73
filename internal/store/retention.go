package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"kinescope/internal/logging"
)

// CleanupOldChunks deletes chunk files and records older than the retention
// cutoff. Summary records referencing a deleted file keep their row but have
// the file pointer nulled. A missing file on disk is logged and does not
// block deletion of its database record.
func (s *Store) CleanupOldChunks(ctx context.Context, retentionDays int) (CleanupResult, error) {
	if retentionDays <= 0 {
		return CleanupResult{}, fmt.Errorf("cleanup: retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	expired, err := s.chunksEndedBefore(ctx, cutoff)
	if err != nil {
		return CleanupResult{}, err
	}
	result := CleanupResult{ChunksFound: len(expired)}
	if len(expired) == 0 {
		return result, nil
	}

	for _, chunk := range expired {
		if removeErr := os.Remove(chunk.FilePath); removeErr != nil {
			if errors.Is(removeErr, fs.ErrNotExist) {
				result.MissingFiles++
				s.logger.Warn("chunk file already missing",
					logging.Int64(logging.FieldChunkID, chunk.ID),
					logging.String("file", chunk.FilePath),
				)
			} else {
				s.logger.Warn("failed to remove chunk file",
					logging.Int64(logging.FieldChunkID, chunk.ID),
					logging.String("file", chunk.FilePath),
					logging.Error(removeErr),
				)
			}
		}

		if err := s.deleteChunkRecord(ctx, chunk); err != nil {
			return result, err
		}
		result.ChunksDeleted++
		result.BytesFreed += chunk.SizeBytes
	}

	s.logger.Info("retention cleanup finished",
		logging.Int("found", result.ChunksFound),
		logging.Int("deleted", result.ChunksDeleted),
		logging.Int64("bytes_freed", result.BytesFreed),
		logging.Int("missing_files", result.MissingFiles),
	)
	return result, nil
}

// EnforceStorageLimit deletes the oldest completed chunks until total stored
// bytes fit under maxBytes.
func (s *Store) EnforceStorageLimit(ctx context.Context, maxBytes int64) (CleanupResult, error) {
	if maxBytes <= 0 {
		return CleanupResult{}, fmt.Errorf("cleanup: storage limit must be positive, got %d", maxBytes)
	}

	_, total, err := s.ChunkTotals(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	if total <= maxBytes {
		return CleanupResult{}, nil
	}

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+chunkColumns+` FROM chunks WHERE status = ? ORDER BY start_ts`,
		ChunkCompleted,
	)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("list chunks for storage limit: %w", err)
	}
	defer rows.Close()

	var victims []*Chunk
	excess := total - maxBytes
	for rows.Next() && excess > 0 {
		chunk, scanErr := scanChunk(rows)
		if scanErr != nil {
			return CleanupResult{}, scanErr
		}
		victims = append(victims, chunk)
		excess -= chunk.SizeBytes
	}
	if err := rows.Err(); err != nil {
		return CleanupResult{}, err
	}

	result := CleanupResult{ChunksFound: len(victims)}
	for _, chunk := range victims {
		if removeErr := os.Remove(chunk.FilePath); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove chunk file",
				logging.Int64(logging.FieldChunkID, chunk.ID),
				logging.Error(removeErr),
			)
		}
		if err := s.deleteChunkRecord(ctx, chunk); err != nil {
			return result, err
		}
		result.ChunksDeleted++
		result.BytesFreed += chunk.SizeBytes
	}
	return result, nil
}

func (s *Store) chunksEndedBefore(ctx context.Context, cutoff time.Time) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+chunkColumns+` FROM chunks WHERE end_ts < ? ORDER BY start_ts`,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired chunks: %w", err)
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

// deleteChunkRecord removes a chunk row, its batch associations, and any
// dangling summary file references in one transaction.
func (s *Store) deleteChunkRecord(ctx context.Context, chunk *Chunk) error {
	err := s.withWrite(ctx, func() error {
		tx, txErr := s.db.BeginTx(ensureContext(ctx), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		if _, execErr := tx.Exec(
			`UPDATE summaries SET chunk_file_path = NULL WHERE chunk_file_path = ?`,
			chunk.FilePath,
		); execErr != nil {
			return execErr
		}
		if _, execErr := tx.Exec(`DELETE FROM batch_chunks WHERE chunk_id = ?`, chunk.ID); execErr != nil {
			return execErr
		}
		if _, execErr := tx.Exec(`DELETE FROM chunks WHERE id = ?`, chunk.ID); execErr != nil {
			return execErr
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("delete chunk %d: %w", chunk.ID, err)
	}
	return nil
}
