package port

import (
	"context"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// StatusRepository defines persistence operations for Status
type StatusRepository interface {
	Create(ctx context.Context, status *entity.Status) error
	// GetByID returns nil, nil when the status does not exist
	GetByID(ctx context.Context, id string) (*entity.Status, error)
	List(ctx context.Context) ([]*entity.Status, error)
	Delete(ctx context.Context, id string) error
}

// RuleRepository defines persistence operations for TransitionRule
type RuleRepository interface {
	// Create inserts the rule and sets its ID
	Create(ctx context.Context, rule *entity.TransitionRule) error
	List(ctx context.Context) ([]*entity.TransitionRule, error)
	Delete(ctx context.Context, fromStatus, toStatus string) error
	DeleteReferencing(ctx context.Context, statusID string) (int64, error)
}

// WorkflowStateRepository defines persistence operations for WorkflowState
type WorkflowStateRepository interface {
	// Get returns nil, nil when the patient has no workflow state
	Get(ctx context.Context, patientID string) (*entity.WorkflowState, error)
	// Create inserts the state unless one already exists and returns the stored row
	Create(ctx context.Context, state *entity.WorkflowState) (*entity.WorkflowState, error)
	// Update writes the state if the stored version equals expectedVersion,
	// otherwise it fails with workflow.ErrConflict
	Update(ctx context.Context, state *entity.WorkflowState, expectedVersion int64) error
	CountByStatus(ctx context.Context, statusID string) (int64, error)
	List(ctx context.Context, limit, offset int) ([]*entity.WorkflowState, error)
}

// HistoryRepository defines persistence operations for HistoryEntry
type HistoryRepository interface {
	// Append inserts the entry and sets its Sequence
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	// ListByPatient returns entries ordered by timestamp, then sequence
	ListByPatient(ctx context.Context, patientID string) ([]*entity.HistoryEntry, error)
	// GetByIdempotencyKey returns nil, nil when no entry carries the key
	GetByIdempotencyKey(ctx context.Context, patientID, key string) (*entity.HistoryEntry, error)
	List(ctx context.Context, limit, offset int) ([]*entity.HistoryEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
