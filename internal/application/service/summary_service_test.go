package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

func newSummaryRegistry(t *testing.T) *domainwf.StatusRegistry {
	t.Helper()
	registry := domainwf.NewStatusRegistry(nil)
	for _, st := range []entity.Status{
		{ID: "new", Name: "New patient"},
		{ID: "in_treatment", Name: "In treatment"},
	} {
		if err := registry.Add(st); err != nil {
			t.Fatal(err)
		}
	}
	return registry
}

func TestSummaryService_Generate(t *testing.T) {
	assignee := "dr.lee"
	from := "new"
	engine := &mockEngine{
		getStateFunc: func(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
			return &entity.WorkflowState{
				PatientID:       patientID,
				CurrentStatusID: "in_treatment",
				AssignedTo:      &assignee,
				Notes:           "started physio",
				Version:         2,
			}, nil
		},
		historyFunc: func(ctx context.Context, patientID string) ([]entity.HistoryEntry, error) {
			return []entity.HistoryEntry{{
				PatientID:    patientID,
				FromStatusID: &from,
				ToStatusID:   "in_treatment",
				PerformedBy:  "nurse.kim",
				Timestamp:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			}}, nil
		},
	}

	var got entity.PatientContext
	var gotOpts entity.SummaryOptions
	gen := &mockGenerator{
		generateFunc: func(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error) {
			got, gotOpts = pc, opts
			return &entity.Summary{PatientID: pc.PatientID, Type: opts.Type, Content: "ok", Generator: "mock"}, nil
		},
	}

	svc := NewSummaryService(engine, newSummaryRegistry(t), gen, nil, noopLogger{})
	summary, err := svc.Generate(context.Background(), "p-1", entity.SummaryOptions{IncludeHistory: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if summary.Content != "ok" {
		t.Errorf("Content = %q", summary.Content)
	}
	if gotOpts.Type != entity.SummaryComprehensive {
		t.Errorf("default type = %q, want comprehensive", gotOpts.Type)
	}
	if got.CurrentStatus.Name != "In treatment" {
		t.Errorf("CurrentStatus = %+v", got.CurrentStatus)
	}
	if got.AssignedTo != "dr.lee" || got.Notes != "started physio" {
		t.Errorf("context = %+v", got)
	}
	if len(got.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(got.History))
	}
	if got.StatusName("new") != "New patient" {
		t.Errorf("StatusName(new) = %q", got.StatusName("new"))
	}
}

func TestSummaryService_InvalidType(t *testing.T) {
	engine := &mockEngine{
		getStateFunc: func(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
			t.Fatal("state must not be loaded for an invalid type")
			return nil, nil
		},
	}
	svc := NewSummaryService(engine, newSummaryRegistry(t), &mockGenerator{}, nil, noopLogger{})

	_, err := svc.Generate(context.Background(), "p-1", entity.SummaryOptions{Type: "haiku"})
	if !errors.Is(err, ErrInvalidSummaryType) {
		t.Errorf("Generate() error = %v, want ErrInvalidSummaryType", err)
	}
}

func TestSummaryService_Errors(t *testing.T) {
	t.Run("state lookup fails", func(t *testing.T) {
		engine := &mockEngine{
			getStateFunc: func(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
				return nil, &domainwf.StorageError{Op: "get state", Err: errors.New("io")}
			},
		}
		svc := NewSummaryService(engine, newSummaryRegistry(t), &mockGenerator{}, nil, noopLogger{})

		_, err := svc.Generate(context.Background(), "p-1", entity.SummaryOptions{Type: entity.SummaryConcise})
		if !errors.Is(err, domainwf.ErrStorage) {
			t.Errorf("Generate() error = %v, want storage error", err)
		}
	})

	t.Run("generator fails", func(t *testing.T) {
		engine := &mockEngine{
			getStateFunc: func(ctx context.Context, patientID, defaultStatusID string) (*entity.WorkflowState, error) {
				return &entity.WorkflowState{PatientID: patientID, CurrentStatusID: "new", Version: 1}, nil
			},
		}
		gen := &mockGenerator{
			generateFunc: func(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error) {
				return nil, errors.New("rate limited")
			},
		}
		svc := NewSummaryService(engine, newSummaryRegistry(t), gen, nil, noopLogger{})

		_, err := svc.Generate(context.Background(), "p-1", entity.SummaryOptions{Type: entity.SummarySpecialist})
		if err == nil || !strings.Contains(err.Error(), "rate limited") {
			t.Errorf("Generate() error = %v", err)
		}
	})
}
