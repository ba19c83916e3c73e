package service

import (
	"context"
	"sync"

	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// Mock implementations

type mockStatusRepo struct {
	createFunc  func(ctx context.Context, status *entity.Status) error
	getByIDFunc func(ctx context.Context, id string) (*entity.Status, error)
	listFunc    func(ctx context.Context) ([]*entity.Status, error)
	deleteFunc  func(ctx context.Context, id string) error
}

func (m *mockStatusRepo) Create(ctx context.Context, status *entity.Status) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, status)
	}
	return nil
}

func (m *mockStatusRepo) GetByID(ctx context.Context, id string) (*entity.Status, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockStatusRepo) List(ctx context.Context) ([]*entity.Status, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockStatusRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

type mockRuleRepo struct {
	createFunc            func(ctx context.Context, rule *entity.TransitionRule) error
	listFunc              func(ctx context.Context) ([]*entity.TransitionRule, error)
	deleteFunc            func(ctx context.Context, from, to string) error
	deleteReferencingFunc func(ctx context.Context, statusID string) (int64, error)
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *entity.TransitionRule) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepo) List(ctx context.Context) ([]*entity.TransitionRule, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockRuleRepo) Delete(ctx context.Context, from, to string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, from, to)
	}
	return nil
}

func (m *mockRuleRepo) DeleteReferencing(ctx context.Context, statusID string) (int64, error) {
	if m.deleteReferencingFunc != nil {
		return m.deleteReferencingFunc(ctx, statusID)
	}
	return 0, nil
}

type mockStateRepo struct {
	states  []*entity.WorkflowState
	countFn func(ctx context.Context, statusID string) (int64, error)
}

func (m *mockStateRepo) Get(ctx context.Context, patientID string) (*entity.WorkflowState, error) {
	for _, s := range m.states {
		if s.PatientID == patientID {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (m *mockStateRepo) Create(ctx context.Context, state *entity.WorkflowState) (*entity.WorkflowState, error) {
	m.states = append(m.states, state.Clone())
	return state.Clone(), nil
}

func (m *mockStateRepo) Update(ctx context.Context, state *entity.WorkflowState, expectedVersion int64) error {
	return nil
}

func (m *mockStateRepo) CountByStatus(ctx context.Context, statusID string) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, statusID)
	}
	var n int64
	for _, s := range m.states {
		if s.CurrentStatusID == statusID {
			n++
		}
	}
	return n, nil
}

func (m *mockStateRepo) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowState, error) {
	return m.states, nil
}

type mockHistoryRepo struct {
	entries []*entity.HistoryEntry
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	entry.Sequence = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) ListByPatient(ctx context.Context, patientID string) ([]*entity.HistoryEntry, error) {
	var out []*entity.HistoryEntry
	for _, e := range m.entries {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockHistoryRepo) GetByIdempotencyKey(ctx context.Context, patientID, key string) (*entity.HistoryEntry, error) {
	return nil, nil
}

func (m *mockHistoryRepo) List(ctx context.Context, limit, offset int) ([]*entity.HistoryEntry, error) {
	return m.entries, nil
}

// mockTxManager runs fn directly and reports how often it was called
type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockSender struct {
	mu       sync.Mutex
	messages []string
	sendErr  error
}

func (m *mockSender) SendText(ctx context.Context, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, content)
	return nil
}

type mockEngine struct {
	getStateFunc func(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error)
	historyFunc  func(ctx context.Context, patientID string) ([]entity.HistoryEntry, error)
}

func (m *mockEngine) RequestTransition(ctx context.Context, req workflow.TransitionRequest) (*workflow.TransitionResult, error) {
	return nil, nil
}

func (m *mockEngine) GetState(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
	return m.getStateFunc(ctx, patientID, defaultStatusID)
}

func (m *mockEngine) History(ctx context.Context, patientID string) ([]entity.HistoryEntry, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, patientID)
	}
	return nil, nil
}

func (m *mockEngine) AvailableTransitions(ctx context.Context, patientID, defaultStatusID string) ([]workflow.AvailableTransition, error) {
	return nil, nil
}

type mockGenerator struct {
	generateFunc func(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error)
}

func (m *mockGenerator) Generate(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error) {
	return m.generateFunc(ctx, pc, opts)
}

func (m *mockGenerator) Name() string {
	return "mock"
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
