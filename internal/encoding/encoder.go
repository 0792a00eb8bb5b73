package encoding

import (
	"context"
	"time"

	"kinescope/internal/compression"
	"kinescope/internal/framepool"
)

// Result describes a completed encode: the chunk file on disk plus the
// measurements the adaptive controller and the store need.
type Result struct {
	FilePath   string
	SizeBytes  int64
	Duration   time.Duration
	FrameCount int
}

// Encoder accepts settings plus a frame stream and produces a chunk file.
// Implementations wrap an external encoding backend.
type Encoder interface {
	// Encode consumes frames until the channel closes or ctx ends, then
	// finalizes the chunk at outPath. Failures are classified with the
	// sentinel errors in this package.
	Encode(ctx context.Context, settings compression.Settings, outPath string, frames <-chan framepool.Frame) (Result, error)
}
