package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// HistoryAuditorConfig holds configuration for the history auditor
type HistoryAuditorConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultHistoryAuditorConfig returns default configuration
func DefaultHistoryAuditorConfig() HistoryAuditorConfig {
	return HistoryAuditorConfig{
		Interval:  time.Hour,
		BatchSize: 200,
	}
}

// AuditReport summarizes one pass over all workflow states
type AuditReport struct {
	Checked  int
	Diverged []string
	Started  time.Time
	Finished time.Time
}

// HistoryAuditor periodically replays each patient's history and reports
// states that no longer match their audit trail
type HistoryAuditor struct {
	config  HistoryAuditorConfig
	states  port.WorkflowStateRepository
	history port.HistoryRepository
	tx      port.TransactionManager
	logger  *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	last      *AuditReport
}

// NewHistoryAuditor creates a new history auditor
func NewHistoryAuditor(
	config HistoryAuditorConfig,
	states port.WorkflowStateRepository,
	history port.HistoryRepository,
	tx port.TransactionManager,
	logger *zap.Logger,
) *HistoryAuditor {
	if config.Interval <= 0 {
		config.Interval = DefaultHistoryAuditorConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultHistoryAuditorConfig().BatchSize
	}
	return &HistoryAuditor{
		config:  config,
		states:  states,
		history: history,
		tx:      tx,
		logger:  logger,
	}
}

// Name returns the worker name for identification
func (a *HistoryAuditor) Name() string {
	return "HistoryAuditor"
}

// Start begins the audit loop
func (a *HistoryAuditor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isRunning {
		return fmt.Errorf("history auditor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.isRunning = true

	go a.loop(runCtx, a.done)

	a.logger.Info("HistoryAuditor started", zap.Duration("interval", a.config.Interval))
	return nil
}

// Stop terminates the loop and waits for an in-flight pass to finish
func (a *HistoryAuditor) Stop() error {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return nil
	}
	a.isRunning = false
	a.cancel()
	done := a.done
	a.mu.Unlock()

	<-done
	a.logger.Info("HistoryAuditor stopped")
	return nil
}

// LastReport returns the most recent completed pass, or nil
func (a *HistoryAuditor) LastReport() *AuditReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *HistoryAuditor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("History audit failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce verifies every stored workflow state against its history
func (a *HistoryAuditor) RunOnce(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{Started: time.Now()}
	seen := make(map[string]bool)

	for offset := 0; ; offset += a.config.BatchSize {
		states, err := a.states.List(ctx, a.config.BatchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list workflow states: %w", err)
		}

		for _, listed := range states {
			// New patients shift later pages, so a state can be listed twice.
			if seen[listed.PatientID] {
				continue
			}
			seen[listed.PatientID] = true

			state, err := a.check(ctx, listed.PatientID)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case !errors.Is(err, workflow.ErrHistoryDiverged):
				a.logger.Error("Failed to audit patient", zap.String("patient_id", listed.PatientID), zap.Error(err))
			default:
				a.logger.Warn("Workflow state diverged from history",
					zap.String("patient_id", listed.PatientID),
					zap.String("current_status", state.CurrentStatusID),
					zap.Error(err))
				report.Diverged = append(report.Diverged, listed.PatientID)
			}
			report.Checked++
		}

		if len(states) < a.config.BatchSize {
			break
		}
	}

	report.Finished = time.Now()
	a.mu.Lock()
	a.last = report
	a.mu.Unlock()

	a.logger.Info("History audit complete",
		zap.Int("checked", report.Checked),
		zap.Int("diverged", len(report.Diverged)),
		zap.Duration("duration", report.Finished.Sub(report.Started)))
	return report, nil
}

// check verifies a patient, reading again before reporting so that a
// transition committed between the two reads is not taken for divergence.
func (a *HistoryAuditor) check(ctx context.Context, patientID string) (*entity.WorkflowState, error) {
	state, err := a.verify(ctx, patientID)
	if err == nil || !errors.Is(err, workflow.ErrHistoryDiverged) {
		return state, err
	}
	return a.verify(ctx, patientID)
}

// verify reads the state and its history in one transaction and replays it
func (a *HistoryAuditor) verify(ctx context.Context, patientID string) (*entity.WorkflowState, error) {
	var (
		state   *entity.WorkflowState
		entries []entity.HistoryEntry
	)
	err := a.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		state, err = a.states.Get(txCtx, patientID)
		if err != nil {
			return err
		}
		rows, err := a.history.ListByPatient(txCtx, patientID)
		if err != nil {
			return err
		}
		entries = make([]entity.HistoryEntry, 0, len(rows))
		for _, e := range rows {
			entries = append(entries, *e)
		}
		return nil
	})
	if err != nil {
		return &entity.WorkflowState{PatientID: patientID}, err
	}
	if state == nil {
		return &entity.WorkflowState{PatientID: patientID}, fmt.Errorf("workflow state for %s disappeared", patientID)
	}
	return state, workflow.Verify(state, entries)
}
