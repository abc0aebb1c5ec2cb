package work

import "errors"

// RetryableError marks a failure as transient: the pool re-enqueues
// the item with backoff until the retry budget is exhausted.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError marks a failure as final: the run terminates
// immediately and is never retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable wraps err as transient. Returns nil for a nil err.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent wraps err as final. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether err is marked transient. Unclassified
// errors are not retried; failing closed avoids retry storms on bugs.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
