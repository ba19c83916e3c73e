package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/application/dispatcher"
	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	"github.com/garyjia/medoffice-workflow/internal/domain/event"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// ErrInvalidSummaryType is returned for an unknown summary type
var ErrInvalidSummaryType = errors.New("invalid summary type")

// SummaryService builds patient summaries from workflow state and history
type SummaryService interface {
	Generate(ctx context.Context, patientID string, opts entity.SummaryOptions) (*entity.Summary, error)
}

type summaryServiceImpl struct {
	engine     workflow.Engine
	registry   *domainwf.StatusRegistry
	generator  port.SummaryGenerator
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// NewSummaryService creates a new SummaryService. d may be nil.
func NewSummaryService(
	engine workflow.Engine,
	registry *domainwf.StatusRegistry,
	generator port.SummaryGenerator,
	d dispatcher.Dispatcher,
	logger Logger,
) SummaryService {
	return &summaryServiceImpl{
		engine:     engine,
		registry:   registry,
		generator:  generator,
		dispatcher: d,
		logger:     logger,
	}
}

// Generate implements SummaryService
func (s *summaryServiceImpl) Generate(ctx context.Context, patientID string, opts entity.SummaryOptions) (*entity.Summary, error) {
	if opts.Type == "" {
		opts.Type = entity.SummaryComprehensive
	}
	if !opts.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSummaryType, opts.Type)
	}

	pc, err := s.patientContext(ctx, patientID)
	if err != nil {
		return nil, err
	}

	summary, err := s.generator.Generate(ctx, *pc, opts)
	if err != nil {
		s.logger.Error("Summary generation failed", "patient_id", patientID, "generator", s.generator.Name(), "error", err)
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	s.logger.Info("Summary generated", "patient_id", patientID, "type", string(opts.Type), "generator", summary.Generator)
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeSummaryGenerated, patientID, map[string]interface{}{
			"summary_type": string(opts.Type),
			"generator":    summary.Generator,
		}))
	}
	return summary, nil
}

func (s *summaryServiceImpl) patientContext(ctx context.Context, patientID string) (*entity.PatientContext, error) {
	state, err := s.engine.GetState(ctx, patientID, "")
	if err != nil {
		return nil, err
	}
	history, err := s.engine.History(ctx, patientID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	for status := range s.registry.All() {
		names[status.ID] = status.Name
	}

	current, err := s.registry.Get(state.CurrentStatusID)
	if err != nil {
		current = entity.Status{ID: state.CurrentStatusID, Name: state.CurrentStatusID}
	}

	pc := &entity.PatientContext{
		PatientID:     patientID,
		CurrentStatus: current,
		Notes:         state.Notes,
		History:       history,
		StatusNames:   names,
	}
	if state.AssignedTo != nil {
		pc.AssignedTo = *state.AssignedTo
	}
	return pc, nil
}
