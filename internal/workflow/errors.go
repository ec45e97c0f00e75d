package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by runner operations.
var (
	// ErrInvalidState is returned when an operation is not valid for the
	// run's current status (advancing a terminal run, resolving an approval
	// on a run that is not awaiting one, and so on).
	ErrInvalidState = errors.New("workflow: operation not valid for run status")

	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("workflow: run not found")
)

// MissingContextError indicates a stage graph references a key no upstream
// stage produces. A configuration defect: fatal, never retried.
type MissingContextError struct {
	Stage string
	Key   string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("workflow: stage %q requires context key %q which is not present", e.Stage, e.Key)
}

// DuplicateKeyError indicates a write to a context key that already exists.
// Two stages declaring the same output name is a configuration defect: fatal.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("workflow: context key %q already present", e.Key)
}

// KeyNotFoundError indicates a read of an absent context key.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("workflow: context key %q not found", e.Key)
}

// TransientError wraps an invoker failure expected to succeed on retry
// (timeout, rate limit, transient network fault).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "workflow: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps an invoker failure that no retry can fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "workflow: permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
