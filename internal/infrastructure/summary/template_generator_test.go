package summary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

func samplePatient() entity.PatientContext {
	newStatus := "new"
	treating := "in_treatment"
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	return entity.PatientContext{
		PatientID:     "p1",
		CurrentStatus: entity.Status{ID: "follow_up", Name: "Follow-up", Description: "Awaiting follow-up visit"},
		AssignedTo:    "dr.lee",
		Notes:         "BP stable",
		History: []entity.HistoryEntry{
			{ID: "h1", FromStatusID: &newStatus, ToStatusID: "in_treatment", PerformedBy: "nurse.kim", Timestamp: ts},
			{ID: "h2", FromStatusID: &treating, ToStatusID: "follow_up", PerformedBy: "dr.lee", Approved: true,
				Notes: "BP stable", Timestamp: ts.Add(48 * time.Hour)},
		},
		StatusNames: map[string]string{"new": "New Patient", "in_treatment": "In Treatment", "follow_up": "Follow-up"},
	}
}

func TestTemplateGenerator_AllTypes(t *testing.T) {
	g := NewTemplateGenerator()
	ctx := context.Background()

	tests := []struct {
		summaryType entity.SummaryType
		contains    []string
	}{
		{entity.SummaryComprehensive, []string{"Current status: Follow-up", "Assigned to: dr.lee", "New Patient -> In Treatment by nurse.kim", "[approved]"}},
		{entity.SummaryConcise, []string{"Patient p1 is Follow-up (assigned to dr.lee); 2 status changes, last on 2026-03-04 09:30 by dr.lee."}},
		{entity.SummarySpecialist, []string{"Handoff: patient p1", "Last transition: In Treatment -> Follow-up", "approved"}},
		{entity.SummaryPatientFriendly, []string{`"Follow-up" stage`, "coordinated by dr.lee", `you moved to "In Treatment"`}},
	}

	for _, tt := range tests {
		t.Run(string(tt.summaryType), func(t *testing.T) {
			s, err := g.Generate(ctx, samplePatient(), entity.SummaryOptions{Type: tt.summaryType, IncludeHistory: true})
			require.NoError(t, err)

			assert.Equal(t, "template", s.Generator)
			assert.Equal(t, tt.summaryType, s.Type)
			for _, want := range tt.contains {
				assert.Contains(t, s.Content, want)
			}
		})
	}
}

func TestTemplateGenerator_Deterministic(t *testing.T) {
	g := NewTemplateGenerator()
	opts := entity.SummaryOptions{Type: entity.SummaryComprehensive, IncludeHistory: true}

	first, err := g.Generate(context.Background(), samplePatient(), opts)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), samplePatient(), opts)
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
}

func TestTemplateGenerator_WithoutHistory(t *testing.T) {
	g := NewTemplateGenerator()

	s, err := g.Generate(context.Background(), samplePatient(), entity.SummaryOptions{Type: entity.SummaryComprehensive})
	require.NoError(t, err)
	assert.NotContains(t, s.Content, "Timeline:")
}

func TestTemplateGenerator_UnknownType(t *testing.T) {
	g := NewTemplateGenerator()

	_, err := g.Generate(context.Background(), samplePatient(), entity.SummaryOptions{Type: "poetic"})
	assert.Error(t, err)
}
