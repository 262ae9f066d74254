package domain

import (
	"errors"
	"fmt"
)

// ErrRateLimited indicates a caller exceeded its connection attempt budget.
var ErrRateLimited = errors.New("too many connection attempts")

// ValidationError reports a malformed request payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// PersistenceError wraps a storage failure that must not block live delivery.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TransportWriteError wraps a failed push to a single subscriber.
type TransportWriteError struct {
	ConnectionID uint64
	Err          error
}

func (e *TransportWriteError) Error() string {
	return fmt.Sprintf("write to connection %d: %v", e.ConnectionID, e.Err)
}

func (e *TransportWriteError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
