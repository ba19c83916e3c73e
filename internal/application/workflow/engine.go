package workflow

import (
	"context"
	"time"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// Engine validates and applies patient status transitions
type Engine interface {
	// RequestTransition moves a patient to a new status if a rule permits it.
	// The state update and its history entry are written atomically.
	RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// GetState returns the patient's workflow state, creating it at
	// defaultStatusID (or the engine default when empty) on first access
	GetState(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error)

	// History returns the patient's history in chronological order
	History(ctx context.Context, patientID string) ([]entity.HistoryEntry, error)

	// AvailableTransitions lists the moves a rule permits from the patient's current status
	AvailableTransitions(ctx context.Context, patientID, defaultStatusID string) ([]AvailableTransition, error)
}

// TransitionRequest asks the engine to move a patient
type TransitionRequest struct {
	PatientID  string
	ToStatusID string
	Actor      string
	Notes      string
	Approved   bool

	// AssignedTo replaces the current assignee when non-nil
	AssignedTo *string

	// IdempotencyKey deduplicates retries. When empty and RequestedAt is set,
	// a key is derived from Actor, RequestedAt and ToStatusID.
	IdempotencyKey string
	RequestedAt    time.Time

	// DefaultStatusID seeds the state of a patient seen for the first time
	DefaultStatusID string
}

// TransitionResult is the outcome of an applied (or replayed) transition
type TransitionResult struct {
	State *entity.WorkflowState `json:"state"`
	Entry *entity.HistoryEntry  `json:"entry"`

	// Replayed is true when the idempotency key had already been applied
	Replayed bool `json:"replayed"`
}

// AvailableTransition is a move permitted from a patient's current status
type AvailableTransition struct {
	To               entity.Status `json:"to"`
	RuleName         string        `json:"rule_name"`
	RequiresApproval bool          `json:"requires_approval"`
	Wildcard         bool          `json:"wildcard"`
}
