package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted wraps the last attempt error once all attempts
// have been spent
var ErrRetriesExhausted = errors.New("retries exhausted")

// TimeoutError indicates an attempt exceeded its per-attempt deadline
type TimeoutError struct {
	Source  string
	Attempt int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch from %q timed out after %s (attempt %d)", e.Source, e.Timeout, e.Attempt+1)
}

// FetchError indicates the fetcher itself reported a failure
type FetchError struct {
	Source  string
	Attempt int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %q failed (attempt %d): %v", e.Source, e.Attempt+1, e.Err)
}

// Unwrap exposes the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}
