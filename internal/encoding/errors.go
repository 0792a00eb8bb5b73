package encoding

import "errors"

var (
	// ErrEncoderUnavailable indicates the backend cannot encode at all.
	// Not retryable; the recorder transitions to its error state.
	ErrEncoderUnavailable = errors.New("encoder unavailable")

	// ErrEncodeInterrupted indicates a transient failure mid-encode.
	// The recorder retries within its backoff budget.
	ErrEncodeInterrupted = errors.New("encode interrupted")
)
