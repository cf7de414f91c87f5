// Package store defines the error taxonomy shared by all persistence
// adapters. Callers above the adapter boundary only ever distinguish
// recoverable from fatal storage errors; which engine raised them and
// which driver code they carry stays inside the adapter.
package store

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// RecoverableError marks a storage failure that is expected to clear on
// retry (lost connection, serialization conflict, deadlock victim).
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return "store: recoverable: " + e.Err.Error()
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// Recoverable wraps err as recoverable. Returns nil for a nil err.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// IsRecoverable reports whether err was classified as recoverable by a
// persistence adapter. Everything else is treated as fatal.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}
