// Package retry runs operations under an explicit, reusable retry policy.
//
// A Policy is a plain value: which errors are worth retrying, how many retries
// are allowed, and what to do between attempts. The backoff callback doubles as
// a cancellation checkpoint: returning true stops the loop early.
package retry

import (
	"errors"
	"fmt"
)

// ErrRetriesExceeded matches any *RetriesExceededError via errors.Is.
var ErrRetriesExceeded = errors.New("retries exceeded")

// RetriesExceededError is returned when a policy's retry budget is exhausted
// or its backoff requested an abort.
type RetriesExceededError struct {
	Attempts int
	Aborted  bool
	Err      error
}

func (e *RetriesExceededError) Error() string {
	if e.Aborted {
		return fmt.Sprintf("retries aborted after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exceeded after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRetriesExceeded.
func (e *RetriesExceededError) Is(target error) bool {
	return target == ErrRetriesExceeded
}

// Backoff runs between attempts. Returning true aborts the retry loop.
type Backoff func() (abort bool)

// Policy describes how an operation is retried.
type Policy struct {
	// Retryable reports whether err consumes a retry. Errors it rejects are
	// returned on the spot. A nil Retryable retries nothing.
	Retryable func(error) bool

	// Retries is the number of retries after the first attempt.
	Retries int

	// Backoff is invoked between attempts, never after the last one.
	Backoff Backoff

	// KeepLastError returns the last underlying error on exhaustion instead
	// of wrapping it in a *RetriesExceededError.
	KeepLastError bool
}

// On returns a classifier accepting errors that match any of targets.
func On(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// Do runs op under policy p.
func Do(p Policy, op func() error) error {
	_, err := Value(p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Value runs op under policy p and returns its result.
func Value[T any](p Policy, op func() (T, error)) (T, error) {
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}

	for attempt := 1; ; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return v, err
		}
		if attempt > retries {
			return v, p.exhausted(attempt, false, err)
		}
		if p.Backoff != nil && p.Backoff() {
			return v, p.exhausted(attempt, true, err)
		}
	}
}

func (p Policy) exhausted(attempts int, aborted bool, last error) error {
	if p.KeepLastError {
		return last
	}
	return &RetriesExceededError{Attempts: attempts, Aborted: aborted, Err: last}
}
