package source

import (
	"errors"
	"fmt"
)

// Error is a failure talking to the workspace API. Transient failures are
// worth retrying (timeouts, 429, 5xx); permanent ones are not (page deleted,
// bad request).
type Error struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. Unknown errors are
// treated as transient so a flaky network never turns into a terminal
// failure.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient
	}
	return true
}
