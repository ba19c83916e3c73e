package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

func fakeCompletions(t *testing.T, reply string, captured *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-test",
			Model: captured.Model,
			Choices: []openai.ChatCompletionChoice{
				{Index: 0, Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}},
			},
			Usage: openai.Usage{TotalTokens: 42},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func patientContext() entity.PatientContext {
	from := "new"
	return entity.PatientContext{
		PatientID:     "p1",
		CurrentStatus: entity.Status{ID: "in_treatment", Name: "In Treatment"},
		History: []entity.HistoryEntry{
			{ID: "h1", FromStatusID: &from, ToStatusID: "in_treatment", PerformedBy: "dr.lee"},
		},
		StatusNames: map[string]string{"new": "New Patient", "in_treatment": "In Treatment"},
	}
}

func TestDefaultPrompts_CoverEverySummaryType(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	for _, summaryType := range []entity.SummaryType{
		entity.SummaryComprehensive, entity.SummaryConcise, entity.SummarySpecialist, entity.SummaryPatientFriendly,
	} {
		assert.NotEmpty(t, prompts.Summary.Systems[string(summaryType)], "type %s", summaryType)
	}
}

func TestSummarizer_Generate(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := fakeCompletions(t, "  Patient is in treatment.  ", &captured)

	prompts, err := DefaultPrompts()
	require.NoError(t, err)
	s := NewSummarizer(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, prompts, zap.NewNop())

	result, err := s.Generate(context.Background(), patientContext(), entity.SummaryOptions{
		Type:           entity.SummarySpecialist,
		IncludeHistory: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Patient is in treatment.", result.Content)
	assert.Equal(t, "openai:gpt-4o-mini", result.Generator)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, prompts.Summary.Systems["specialist"], captured.Messages[0].Content)
	assert.Contains(t, captured.Messages[1].Content, "New Patient -> In Treatment by dr.lee")
	assert.Equal(t, prompts.Summary.MaxTokens, captured.MaxTokens)
}

func TestSummarizer_UnknownType(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)
	s := NewSummarizer(Config{APIKey: "test", BaseURL: "http://127.0.0.1:0/v1"}, prompts, zap.NewNop())

	_, err = s.Generate(context.Background(), patientContext(), entity.SummaryOptions{Type: "haiku"})
	assert.Error(t, err)
}
