package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when a status id is already registered
	ErrDuplicateID = errors.New("duplicate status id")

	// ErrNotFound is returned when a status id is not registered
	ErrNotFound = errors.New("status not found")

	// ErrInUse is returned when removing a status that a workflow state still points at
	ErrInUse = errors.New("status in use")

	// ErrInvalidStatus is returned for empty ids or a wildcard used where a concrete status is required
	ErrInvalidStatus = errors.New("invalid status")

	// ErrDuplicateRule is returned when a rule already exists for the exact (from, to) pair
	ErrDuplicateRule = errors.New("duplicate transition rule")

	// ErrNoRule is returned when no rule matches a (from, to) pair
	ErrNoRule = errors.New("no transition rule")

	// ErrNoOpTransition is returned when the target equals the current status
	ErrNoOpTransition = errors.New("no-op transition")

	// ErrTransitionNotAllowed is returned when no rule permits the move
	ErrTransitionNotAllowed = errors.New("transition not allowed")

	// ErrApprovalRequired is returned when the matched rule is approval-gated and approval was not given
	ErrApprovalRequired = errors.New("approval required")

	// ErrConflict is returned when the workflow state changed underneath a transition
	ErrConflict = errors.New("workflow state conflict")

	// ErrLocked is returned when another transition for the same patient held
	// the lock for the whole wait. Nothing was written.
	ErrLocked = errors.New("patient locked by another transition")

	// ErrStorage matches every *StorageError
	ErrStorage = errors.New("storage error")
)

// TransitionError describes a rejected transition request.
// It unwraps to one of ErrNoOpTransition, ErrTransitionNotAllowed or ErrApprovalRequired,
// and to Cause when set.
type TransitionError struct {
	Kind      error
	PatientID string
	From      string
	To        string
	RuleName  string
	Cause     error
}

func (e *TransitionError) Error() string {
	if e.RuleName != "" {
		return fmt.Sprintf("%v: patient %s from %s to %s (%s)", e.Kind, e.PatientID, e.From, e.To, e.RuleName)
	}
	return fmt.Sprintf("%v: patient %s from %s to %s", e.Kind, e.PatientID, e.From, e.To)
}

func (e *TransitionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// StorageError wraps a failure of the persistence collaborator.
// The cause stays reachable through errors.Is / errors.As.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) true for any StorageError
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// WrapStorage wraps err as a StorageError unless it is nil, already a
// StorageError, or an ErrConflict raised by the store's version check.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
