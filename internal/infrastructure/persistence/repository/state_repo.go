package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const stateColumns = `patient_id, current_status_id, previous_status_id, assigned_to,
			notes, version, created_at, updated_at`

// WorkflowStateRepository implements port.WorkflowStateRepository
type WorkflowStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowStateRepository creates a new workflow state repository
func NewWorkflowStateRepository(db *sql.DB, logger *zap.Logger) port.WorkflowStateRepository {
	return &WorkflowStateRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*entity.WorkflowState, error) {
	var state entity.WorkflowState
	var previous, assignee sql.NullString

	err := row.Scan(
		&state.PatientID,
		&state.CurrentStatusID,
		&previous,
		&assignee,
		&state.Notes,
		&state.Version,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.PreviousStatusID = stringPtr(previous)
	state.AssignedTo = stringPtr(assignee)
	return &state, nil
}

// Get retrieves the patient's state, or nil if none exists
func (r *WorkflowStateRepository) Get(ctx context.Context, patientID string) (*entity.WorkflowState, error) {
	query := `SELECT ` + stateColumns + ` FROM workflow_states WHERE patient_id = ?`

	state, err := scanState(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow state", zap.String("patient_id", patientID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow state: %w", err)
	}
	return state, nil
}

// Create inserts the state if the patient has none and returns the stored row
func (r *WorkflowStateRepository) Create(ctx context.Context, state *entity.WorkflowState) (*entity.WorkflowState, error) {
	query := `
		INSERT INTO workflow_states (` + stateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO NOTHING
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		state.PatientID,
		state.CurrentStatusID,
		nullString(state.PreviousStatusID),
		nullString(state.AssignedTo),
		state.Notes,
		state.Version,
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create workflow state", zap.String("patient_id", state.PatientID), zap.Error(err))
		return nil, fmt.Errorf("failed to create workflow state: %w", err)
	}

	stored, err := r.Get(ctx, state.PatientID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("workflow state for %s missing after insert", state.PatientID)
	}
	return stored, nil
}

// Update writes the state when the stored version still equals expectedVersion
func (r *WorkflowStateRepository) Update(ctx context.Context, state *entity.WorkflowState, expectedVersion int64) error {
	query := `
		UPDATE workflow_states
		SET current_status_id = ?, previous_status_id = ?, assigned_to = ?,
			notes = ?, version = ?, updated_at = ?
		WHERE patient_id = ? AND version = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		state.CurrentStatusID,
		nullString(state.PreviousStatusID),
		nullString(state.AssignedTo),
		state.Notes,
		state.Version,
		state.UpdatedAt.UTC(),
		state.PatientID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow state", zap.String("patient_id", state.PatientID), zap.Error(err))
		return fmt.Errorf("failed to update workflow state: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: patient %s is no longer at version %d", domainwf.ErrConflict, state.PatientID, expectedVersion)
	}
	return nil
}

// CountByStatus counts patients currently at statusID
func (r *WorkflowStateRepository) CountByStatus(ctx context.Context, statusID string) (int64, error) {
	var n int64
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workflow_states WHERE current_status_id = ?", statusID,
	).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to count workflow states", zap.String("status_id", statusID), zap.Error(err))
		return 0, fmt.Errorf("failed to count workflow states: %w", err)
	}
	return n, nil
}

// List returns states ordered by patient id
func (r *WorkflowStateRepository) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowState, error) {
	query := `SELECT ` + stateColumns + ` FROM workflow_states ORDER BY patient_id LIMIT ? OFFSET ?`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, limitOrAll(limit), offset)
	if err != nil {
		r.logger.Error("Failed to list workflow states", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow states: %w", err)
	}
	defer rows.Close()

	var states []*entity.WorkflowState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Verify interface compliance
var _ port.WorkflowStateRepository = (*WorkflowStateRepository)(nil)
