package workflow

import (
	"context"
	"time"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// StateStore owns the one-per-patient WorkflowState
type StateStore struct {
	repo     port.WorkflowStateRepository
	registry *domainwf.StatusRegistry
	now      func() time.Time
}

// NewStateStore creates a state store
func NewStateStore(repo port.WorkflowStateRepository, registry *domainwf.StatusRegistry, now func() time.Time) *StateStore {
	if now == nil {
		now = time.Now
	}
	return &StateStore{repo: repo, registry: registry, now: now}
}

// Get returns the stored state or nil when the patient has none
func (s *StateStore) Get(ctx context.Context, patientID string) (*entity.WorkflowState, error) {
	state, err := s.repo.Get(ctx, patientID)
	if err != nil {
		return nil, domainwf.WrapStorage("load workflow state", err)
	}
	return state, nil
}

// GetOrInit returns the patient's state, creating it at defaultStatusID if
// absent. Concurrent first calls converge on a single stored state.
func (s *StateStore) GetOrInit(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
	state, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	if _, err := s.registry.Get(defaultStatusID); err != nil {
		return nil, err
	}

	now := s.now()
	created, err := s.repo.Create(ctx, &entity.WorkflowState{
		PatientID:       patientID,
		CurrentStatusID: defaultStatusID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, domainwf.WrapStorage("create workflow state", err)
	}
	return created, nil
}

// Apply writes the state that results from entry. The stored version must
// still equal state.Version. state itself is not modified.
func (s *StateStore) Apply(ctx context.Context, state *entity.WorkflowState, entry *entity.HistoryEntry, assignedTo *string) (*entity.WorkflowState, error) {
	next := nextState(state, entry, assignedTo)
	if err := s.repo.Update(ctx, next, state.Version); err != nil {
		return nil, domainwf.WrapStorage("save workflow state", err)
	}
	return next, nil
}

func nextState(state *entity.WorkflowState, entry *entity.HistoryEntry, assignedTo *string) *entity.WorkflowState {
	next := state.Clone()
	prev := state.CurrentStatusID
	next.PreviousStatusID = &prev
	next.CurrentStatusID = entry.ToStatusID
	next.Notes = entry.Notes
	if assignedTo != nil {
		assignee := *assignedTo
		next.AssignedTo = &assignee
	}
	next.Version = state.Version + 1
	next.UpdatedAt = entry.Timestamp
	return next
}
