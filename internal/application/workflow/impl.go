package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/medoffice-workflow/internal/application/dispatcher"
	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	"github.com/garyjia/medoffice-workflow/internal/domain/event"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// idempotencyNamespace seeds derived idempotency keys
var idempotencyNamespace = uuid.MustParse("6f1c2a52-3d0e-4b8e-9a57-0c4f3e2b7d11")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	registry *domainwf.StatusRegistry
	rules    *domainwf.TransitionRules
	states   *StateStore
	history  *HistoryLog

	txManager  port.TransactionManager
	locker     port.PatientLocker
	dispatcher dispatcher.Dispatcher
	logger     Logger

	defaultStatus string
	now           func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLocker replaces the in-process per-patient lock
func WithLocker(l port.PatientLocker) EngineOption {
	return func(e *engineImpl) {
		e.locker = l
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithDefaultStatus sets the status used for patients seen for the first time
func WithDefaultStatus(statusID string) EngineOption {
	return func(e *engineImpl) {
		e.defaultStatus = statusID
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	registry *domainwf.StatusRegistry,
	rules *domainwf.TransitionRules,
	stateRepo port.WorkflowStateRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		registry:      registry,
		rules:         rules,
		history:       NewHistoryLog(historyRepo),
		txManager:     txManager,
		locker:        NewKeyedLocker(),
		defaultStatus: StatusNew,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.states = NewStateStore(stateRepo, registry, e.now)
	return e
}

// RequestTransition implements Engine
func (e *engineImpl) RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	if req.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}

	unlock, err := e.locker.Lock(ctx, req.PatientID)
	if err != nil {
		return nil, lockError(req.PatientID, err)
	}
	defer unlock()

	key := idempotencyKey(req)
	if key != "" {
		result, err := e.replay(ctx, req, key)
		if err != nil || result != nil {
			return result, err
		}
	}

	state, err := e.states.GetOrInit(ctx, req.PatientID, e.defaultFor(req.DefaultStatusID))
	if err != nil {
		return nil, err
	}
	from := state.CurrentStatusID

	if req.ToStatusID == from {
		return nil, e.reject(&domainwf.TransitionError{
			Kind: domainwf.ErrNoOpTransition, PatientID: req.PatientID, From: from, To: req.ToStatusID,
		})
	}

	// The target cannot be removed from the registry until the write commits.
	release, err := e.registry.Pin(req.ToStatusID)
	if err != nil {
		return nil, e.reject(&domainwf.TransitionError{
			Kind: domainwf.ErrTransitionNotAllowed, PatientID: req.PatientID, From: from, To: req.ToStatusID, Cause: err,
		})
	}
	defer release()

	rule, ok := e.rules.IsAllowed(from, req.ToStatusID)
	if !ok {
		return nil, e.reject(&domainwf.TransitionError{
			Kind: domainwf.ErrTransitionNotAllowed, PatientID: req.PatientID, From: from, To: req.ToStatusID,
		})
	}

	if rule.RequiresApproval && !req.Approved {
		e.dispatch(ctx, event.TypeApprovalRequired, req.PatientID, map[string]interface{}{
			event.KeyFromStatus:  from,
			event.KeyToStatus:    req.ToStatusID,
			event.KeyPerformedBy: req.Actor,
			event.KeyRuleName:    rule.Name,
		})
		return nil, e.reject(&domainwf.TransitionError{
			Kind: domainwf.ErrApprovalRequired, PatientID: req.PatientID, From: from, To: req.ToStatusID, RuleName: rule.Name,
		})
	}

	// History is ordered by timestamp, so a clock that stepped back must not
	// place this entry before the patient's last transition.
	ts := e.now()
	if ts.Before(state.UpdatedAt) {
		ts = state.UpdatedAt
	}

	entry := &entity.HistoryEntry{
		ID:             uuid.NewString(),
		PatientID:      req.PatientID,
		FromStatusID:   &from,
		ToStatusID:     req.ToStatusID,
		PerformedBy:    req.Actor,
		Notes:          req.Notes,
		Approved:       req.Approved,
		IdempotencyKey: key,
		Timestamp:      ts,
	}

	var next *entity.WorkflowState
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		next, err = e.states.Apply(txCtx, state, entry, req.AssignedTo)
		if err != nil {
			return err
		}
		return e.history.Append(txCtx, entry)
	})
	if err != nil {
		e.logError("Transition write failed", req, from, err)
		return nil, domainwf.WrapStorage("apply transition", err)
	}

	e.logInfo("Transition applied", "patient_id", req.PatientID, "from", from, "to", req.ToStatusID,
		"actor", req.Actor, "rule", rule.Name)

	e.dispatch(ctx, event.TypeStatusChanged, req.PatientID, map[string]interface{}{
		event.KeyFromStatus:  from,
		event.KeyToStatus:    req.ToStatusID,
		event.KeyPerformedBy: req.Actor,
		event.KeyRuleName:    rule.Name,
		event.KeyNotes:       req.Notes,
		event.KeyEntryID:     entry.ID,
	})

	return &TransitionResult{State: next, Entry: entry}, nil
}

// replay returns the recorded outcome of an already applied key, or nil
func (e *engineImpl) replay(ctx context.Context, req TransitionRequest, key string) (*TransitionResult, error) {
	entry, err := e.history.FindByKey(ctx, req.PatientID, key)
	if err != nil || entry == nil {
		return nil, err
	}
	if entry.ToStatusID != req.ToStatusID {
		return nil, fmt.Errorf("%w: idempotency key %s already moved patient %s to %s",
			domainwf.ErrConflict, key, req.PatientID, entry.ToStatusID)
	}

	state, err := e.states.Get(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	e.logInfo("Transition replayed", "patient_id", req.PatientID, "to", req.ToStatusID, "idempotency_key", key)
	return &TransitionResult{State: state, Entry: entry, Replayed: true}, nil
}

// GetState implements Engine
func (e *engineImpl) GetState(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
	unlock, err := e.locker.Lock(ctx, patientID)
	if err != nil {
		return nil, lockError(patientID, err)
	}
	defer unlock()

	return e.states.GetOrInit(ctx, patientID, e.defaultFor(defaultStatusID))
}

// History implements Engine
func (e *engineImpl) History(ctx context.Context, patientID string) ([]entity.HistoryEntry, error) {
	return e.history.ListForPatient(ctx, patientID)
}

// AvailableTransitions implements Engine
func (e *engineImpl) AvailableTransitions(ctx context.Context, patientID, defaultStatusID string) ([]AvailableTransition, error) {
	state, err := e.GetState(ctx, patientID, defaultStatusID)
	if err != nil {
		return nil, err
	}

	var out []AvailableTransition
	for _, rule := range e.rules.Outgoing(state.CurrentStatusID) {
		to, err := e.registry.Get(rule.ToStatus)
		if err != nil {
			continue
		}
		out = append(out, AvailableTransition{
			To:               to,
			RuleName:         rule.Name,
			RequiresApproval: rule.RequiresApproval,
			Wildcard:         rule.IsWildcard(),
		})
	}
	return out, nil
}

func (e *engineImpl) defaultFor(statusID string) string {
	if statusID != "" {
		return statusID
	}
	return e.defaultStatus
}

// idempotencyKey returns the caller's key or one derived from actor, time and target
func idempotencyKey(req TransitionRequest) string {
	if req.IdempotencyKey != "" {
		return req.IdempotencyKey
	}
	if req.RequestedAt.IsZero() {
		return ""
	}
	name := req.Actor + "|" + req.RequestedAt.UTC().Format(time.RFC3339Nano) + "|" + req.ToStatusID
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// lockError reports a lock wait that ran out as ErrLocked. The deadline is not
// kept in the chain since no write was attempted.
func lockError(patientID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domainwf.ErrLocked) {
		return fmt.Errorf("%w: patient %s: %v", domainwf.ErrLocked, patientID, err)
	}
	return fmt.Errorf("lock patient %s: %w", patientID, err)
}

func (e *engineImpl) reject(err *domainwf.TransitionError) error {
	e.logInfo("Transition rejected", "patient_id", err.PatientID, "from", err.From, "to", err.To, "reason", err.Kind.Error())
	return err
}

func (e *engineImpl) dispatch(ctx context.Context, eventType event.Type, patientID string, payload map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, event.NewEvent(eventType, patientID, payload))
}

func (e *engineImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) logError(msg string, req TransitionRequest, from string, err error) {
	if e.logger == nil {
		return
	}
	kv := []interface{}{"patient_id", req.PatientID, "from", from, "to", req.ToStatusID, "error", err}
	if errors.Is(err, context.DeadlineExceeded) {
		kv = append(kv, "outcome", "unknown")
	}
	e.logger.Error(msg, kv...)
}
