package queue

import (
	"errors"
	"fmt"
)

var (
	ErrStopped   = errors.New("queue stopped")
	ErrQueueFull = errors.New("queue full")
)

// NoRetry marks an error as non-retryable.
//
// Executors wrap permanent skips (missing team, deactivated membership,
// invalid send account) with NoRetry so the queue terminates the job
// immediately instead of burning retries.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
