package store

import "errors"

var (
	// ErrChunkNotFound indicates a referenced chunk id does not exist.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrInvalidTransition indicates a status change that would violate the
	// monotonic pending -> completed|failed lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBatchIntegrity indicates a batch referenced a nonexistent chunk;
	// the whole save was rolled back.
	ErrBatchIntegrity = errors.New("batch integrity violation")
)
