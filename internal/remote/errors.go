package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Update when the record does not exist.
	ErrNotFound = errors.New("profile record not found")

	// ErrAlreadyExists is returned by Create when the record exists.
	ErrAlreadyExists = errors.New("profile record already exists")
)

// BackendError is a failed backend operation.
type BackendError struct {
	// Op is the Backend method: "read", "subscribe", "create" or "update".
	Op string

	// ID is the profile record id.
	ID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("remote %s %q: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error {
	return e.Err
}

func opError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, ID: id, Err: err}
}

// IsNotFound reports whether err means the record is missing.
// Uses errors.Is to handle wrapped errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err means a create lost a race.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// OpOf returns the operation of the first BackendError in err's chain, or "".
func OpOf(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Op
	}
	return ""
}
