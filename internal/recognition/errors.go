package recognition

import (
	"errors"
)

var (
	// ErrNotFound reports a referenced person that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps identity store and blob store I/O failures.
	ErrStorage = errors.New("storage failure")
)

// ValidationError is a user-correctable problem with the submitted file.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err came from the identity or blob store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
