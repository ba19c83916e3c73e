package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/medoffice-workflow/pkg/database"
)

type stack struct {
	db       *database.DB
	statuses port.StatusRepository
	states   port.WorkflowStateRepository
	history  port.HistoryRepository
	registry *domainwf.StatusRegistry
	engine   workflow.Engine
}

func newStack(t *testing.T, opts ...workflow.EngineOption) *stack {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "workflow.db"), MaxOpenConns: 4}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run(database.Migrations()))

	s := &stack{
		db:       db,
		statuses: repository.NewStatusRepository(db.DB, logger),
		states:   repository.NewWorkflowStateRepository(db.DB, logger),
		history:  repository.NewHistoryRepository(db.DB, logger),
	}
	s.registry = domainwf.NewStatusRegistry(workflow.NewReferenceChecker(s.states))

	ctx := context.Background()
	for _, id := range []string{"new", "in_treatment", "follow_up"} {
		status := entity.Status{ID: id, Name: id}
		require.NoError(t, s.registry.AddWith(status, func(st entity.Status) error {
			return s.statuses.Create(ctx, &st)
		}))
	}

	rules := domainwf.NewTransitionRules(s.registry)
	_, err = rules.AddRule(entity.AnyStatus, "in_treatment", "Start treatment", false)
	require.NoError(t, err)
	_, err = rules.AddRule("in_treatment", "follow_up", "Schedule follow-up", true)
	require.NoError(t, err)

	s.engine = workflow.NewEngine(s.registry, rules, s.states, s.history, sqlite.NewDB(db.DB, logger), opts...)
	return s
}

func request(patientID, to string, approved bool) workflow.TransitionRequest {
	return workflow.TransitionRequest{PatientID: patientID, ToStatusID: to, Actor: "dr.lee", Approved: approved}
}

func TestEngineOnSQLite_ClinicScenario(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.engine.RequestTransition(ctx, request("p1", "in_treatment", false))
	require.NoError(t, err)

	_, err = s.engine.RequestTransition(ctx, request("p1", "follow_up", false))
	assert.True(t, errors.Is(err, domainwf.ErrApprovalRequired), "got %v", err)

	result, err := s.engine.RequestTransition(ctx, request("p1", "follow_up", true))
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.State.Version)

	stored, err := s.states.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "follow_up", stored.CurrentStatusID)
	assert.Equal(t, "in_treatment", *stored.PreviousStatusID)

	entries, err := s.engine.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "in_treatment", entries[1].From())
	assert.Equal(t, stored.CurrentStatusID, workflow.Replay("new", entries))
	assert.NoError(t, workflow.Verify(stored, entries))

	err = s.registry.Remove(ctx, "follow_up")
	assert.True(t, errors.Is(err, domainwf.ErrInUse), "got %v", err)
}

func TestEngineOnSQLite_ClockSteppingBackKeepsReplay(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	ticks := []time.Time{base, base, base.Add(-2 * time.Second)}
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}
	s := newStack(t, workflow.WithClock(clock))
	ctx := context.Background()

	_, err := s.engine.RequestTransition(ctx, request("p1", "in_treatment", false))
	require.NoError(t, err)
	_, err = s.engine.RequestTransition(ctx, request("p1", "follow_up", true))
	require.NoError(t, err)

	stored, err := s.states.Get(ctx, "p1")
	require.NoError(t, err)

	entries, err := s.engine.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "in_treatment", entries[0].ToStatusID)
	assert.Equal(t, "follow_up", entries[1].ToStatusID)
	assert.Equal(t, stored.CurrentStatusID, workflow.Replay("new", entries))
	assert.NoError(t, workflow.Verify(stored, entries))
}

func TestEngineOnSQLite_FailedHistoryWriteLeavesStateUnchanged(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.engine.GetState(ctx, "p1", "")
	require.NoError(t, err)

	_, err = s.db.Exec("ALTER TABLE workflow_history RENAME TO workflow_history_moved")
	require.NoError(t, err)

	_, err = s.engine.RequestTransition(ctx, request("p1", "in_treatment", false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainwf.ErrStorage), "got %v", err)

	stored, err := s.states.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "new", stored.CurrentStatusID)
	assert.Equal(t, int64(1), stored.Version)
}

func TestEngineOnSQLite_IdempotentRetry(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	req := request("p1", "in_treatment", false)
	req.IdempotencyKey = "visit-7"

	first, err := s.engine.RequestTransition(ctx, req)
	require.NoError(t, err)
	second, err := s.engine.RequestTransition(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	entries, err := s.history.ListByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEngineOnSQLite_ConcurrentPatients(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	patients := []string{"p1", "p2", "p3", "p4"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := map[string]int{}
	for _, patientID := range patients {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(patientID string) {
				defer wg.Done()
				_, err := s.engine.RequestTransition(ctx, request(patientID, "in_treatment", false))
				if err == nil {
					mu.Lock()
					succeeded[patientID]++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, domainwf.ErrNoOpTransition), "patient %s: %v", patientID, err)
			}(patientID)
		}
	}
	wg.Wait()

	for _, patientID := range patients {
		assert.Equal(t, 1, succeeded[patientID], "patient %s", patientID)
		entries, err := s.history.ListByPatient(ctx, patientID)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "patient %s", patientID)
	}
}
