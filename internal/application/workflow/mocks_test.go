package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// Mock implementations

type mockStateRepo struct {
	mu        sync.Mutex
	states    map[string]*entity.WorkflowState
	getErr    error
	updateErr error
}

func newMockStateRepo() *mockStateRepo {
	return &mockStateRepo{states: make(map[string]*entity.WorkflowState)}
}

func (m *mockStateRepo) Get(ctx context.Context, patientID string) (*entity.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.states[patientID].Clone(), nil
}

func (m *mockStateRepo) Create(ctx context.Context, state *entity.WorkflowState) (*entity.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.states[state.PatientID]; ok {
		return existing.Clone(), nil
	}
	m.states[state.PatientID] = state.Clone()
	return state.Clone(), nil
}

func (m *mockStateRepo) Update(ctx context.Context, state *entity.WorkflowState, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	existing, ok := m.states[state.PatientID]
	if !ok || existing.Version != expectedVersion {
		return domainwf.ErrConflict
	}
	m.states[state.PatientID] = state.Clone()
	return nil
}

func (m *mockStateRepo) CountByStatus(ctx context.Context, statusID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.states {
		if s.CurrentStatusID == statusID {
			n++
		}
	}
	return n, nil
}

func (m *mockStateRepo) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.WorkflowState
	for _, s := range m.states {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *mockStateRepo) snapshot() map[string]*entity.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*entity.WorkflowState, len(m.states))
	for k, v := range m.states {
		out[k] = v.Clone()
	}
	return out
}

func (m *mockStateRepo) restore(states map[string]*entity.WorkflowState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = states
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	entries   []*entity.HistoryEntry
	seq       int64
	appendErr error
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, e := range m.entries {
		if entry.IdempotencyKey != "" && e.PatientID == entry.PatientID && e.IdempotencyKey == entry.IdempotencyKey {
			return errors.New("UNIQUE constraint failed: workflow_history.patient_id, workflow_history.idempotency_key")
		}
	}
	m.seq++
	entry.Sequence = m.seq
	stored := *entry
	m.entries = append(m.entries, &stored)
	return nil
}

func (m *mockHistoryRepo) ListByPatient(ctx context.Context, patientID string) ([]*entity.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.HistoryEntry
	for _, e := range m.entries {
		if e.PatientID == patientID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *mockHistoryRepo) GetByIdempotencyKey(ctx context.Context, patientID, key string) (*entity.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.PatientID == patientID && e.IdempotencyKey == key {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockHistoryRepo) List(ctx context.Context, limit, offset int) ([]*entity.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.HistoryEntry(nil), m.entries...), nil
}

func (m *mockHistoryRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockHistoryRepo) snapshot() []*entity.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.HistoryEntry(nil), m.entries...)
}

func (m *mockHistoryRepo) restore(entries []*entity.HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
}

// mockTxManager rolls both repositories back when fn fails
type mockTxManager struct {
	states  *mockStateRepo
	history *mockHistoryRepo
	mu      sync.Mutex
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := m.states.snapshot()
	entries := m.history.snapshot()
	if err := fn(ctx); err != nil {
		m.states.restore(states)
		m.history.restore(entries)
		return err
	}
	return nil
}

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
