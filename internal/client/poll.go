package client

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// StopReason says why PollVerification returned.
type StopReason int

const (
	// StopFound means fn succeeded.
	StopFound StopReason = iota
	// StopExhausted means every attempt failed with a retryable error.
	StopExhausted
	// StopCancelled means ctx ended first.
	StopCancelled
	// StopRejected means the server gave a final answer that retrying cannot change.
	StopRejected
)

func (r StopReason) String() string {
	switch r {
	case StopFound:
		return "found"
	case StopExhausted:
		return "exhausted"
	case StopCancelled:
		return "cancelled"
	case StopRejected:
		return "rejected"
	}
	return "unknown"
}

// PollVerification calls fn at most attempts times, interval apart, until it
// succeeds or fails for good. The last error is returned with the reason.
func PollVerification[T any](ctx context.Context, fn func(context.Context) (T, error), attempts int, interval time.Duration) (T, StopReason, error) {
	var result T
	if attempts < 1 {
		attempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
			return nil
		}
		if retryableErr(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return result, StopFound, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return result, StopCancelled, err
	case !retryableErr(err):
		return result, StopRejected, err
	default:
		return result, StopExhausted, err
	}
}

// retryableErr trusts the server's verdict; transport failures are retried.
func retryableErr(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
