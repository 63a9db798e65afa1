package models

import "errors"

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("sync job not found")

// ErrPageNotFound is returned when a page is absent from the local store.
var ErrPageNotFound = errors.New("page not found")

// ValidationError reports bad caller input. Job state is never touched when
// one of these is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
