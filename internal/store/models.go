package store

import "time"

// ChunkStatus represents the lifecycle of a recording chunk. Transitions are
// monotonic: pending moves to completed or failed and never back.
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkCompleted ChunkStatus = "completed"
	ChunkFailed    ChunkStatus = "failed"
)

// BatchStatus represents the lifecycle of an analysis batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
)

// Chunk is a recorded video segment persisted in SQLite.
type Chunk struct {
	ID        int64       `json:"id"`
	FilePath  string      `json:"file_path"`
	StartTS   time.Time   `json:"start_ts"`
	EndTS     time.Time   `json:"end_ts"`
	SizeBytes int64       `json:"size_bytes"`
	Status    ChunkStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Batch groups chunks for downstream analysis. It is created atomically
// with all of its chunk associations.
type Batch struct {
	ID        int64
	StartTS   time.Time
	EndTS     time.Time
	Status    BatchStatus
	ChunkIDs  []int64
	CreatedAt time.Time
}

// CleanupResult reports what a retention pass found and removed.
type CleanupResult struct {
	ChunksFound   int
	ChunksDeleted int
	BytesFreed    int64
	MissingFiles  int
}

// Summary is a downstream analysis record that may reference a chunk file.
// Retention cleanup nulls the file reference but preserves the row.
type Summary struct {
	ID            int64
	BatchID       int64
	ChunkFilePath string
	Body          string
	CreatedAt     time.Time
}
