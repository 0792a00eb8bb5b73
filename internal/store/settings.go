package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kinescope/internal/logging"
)

// SaveSetting upserts a JSON-serialized value keyed by name.
func (s *Store) SaveSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = s.execWrite(
		ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		string(data),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

// LoadSetting decodes the stored value for key into dest and reports whether
// it succeeded. Missing keys and undecodable values leave dest untouched
// (the caller's default) and return false; a corrupt persisted setting never
// prevents startup.
func (s *Store) LoadSetting(ctx context.Context, key string, dest any) bool {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM settings WHERE key = ?`, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("setting read failed, using default",
				logging.String("key", key),
				logging.Error(err),
			)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn("setting undecodable, using default",
			logging.String("key", key),
			logging.Error(err),
		)
		return false
	}
	return true
}
