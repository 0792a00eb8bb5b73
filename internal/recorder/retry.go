package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"kinescope/internal/capture"
	"kinescope/internal/encoding"
)

// isFatalFault reports whether err can never succeed on retry.
func isFatalFault(err error) bool {
	return errors.Is(err, capture.ErrPermissionDenied) ||
		errors.Is(err, encoding.ErrEncoderUnavailable)
}

// retryTransient runs op with exponential backoff until it succeeds, returns
// a fatal fault, exhausts maxAttempts, or ctx ends. The interval ceiling
// keeps recovery from a stable configuration inside a couple of seconds.
func retryTransient(ctx context.Context, maxAttempts int, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(); err != nil {
			if isFatalFault(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(maxAttempts)))
	return err
}
