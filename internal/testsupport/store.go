package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kinescope/internal/config"
	"kinescope/internal/encoding"
	"kinescope/internal/logging"
	"kinescope/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// WriteChunkFile creates a chunk file of the given size in the config's
// chunk directory and returns its path.
func WriteChunkFile(t testing.TB, cfg *config.Config, start, end time.Time, size int) string {
	t.Helper()

	if err := os.MkdirAll(cfg.Paths.ChunkDir, 0o755); err != nil {
		t.Fatalf("mkdir chunk dir: %v", err)
	}
	path := filepath.Join(cfg.Paths.ChunkDir, encoding.ChunkFileName(start, end, "mp4"))
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write chunk file: %v", err)
	}
	return path
}

// CompletedChunk registers and completes a chunk backed by a real file.
func CompletedChunk(t testing.TB, st *store.Store, cfg *config.Config, start, end time.Time, size int) *store.Chunk {
	t.Helper()

	path := WriteChunkFile(t, cfg, start, end, size)
	chunk, err := st.RegisterChunk(context.Background(), path, start, end)
	if err != nil {
		t.Fatalf("RegisterChunk: %v", err)
	}
	if err := st.MarkCompleted(context.Background(), chunk.ID, int64(size)); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	chunk, err = st.GetChunk(context.Background(), chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	return chunk
}
