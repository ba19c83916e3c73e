package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/summary"
)

// Config holds OpenAI client settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Summarizer implements port.SummaryGenerator using the chat completions API
type Summarizer struct {
	client  *openai.Client
	prompts *PromptConfig
	cfg     Config
	logger  *zap.Logger
}

// NewSummarizer creates a new OpenAI summarizer. Zero temperature and max
// tokens fall back to the prompt configuration.
func NewSummarizer(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Summarizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = prompts.Summary.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = prompts.Summary.MaxTokens
	}

	return &Summarizer{
		client:  openai.NewClientWithConfig(clientCfg),
		prompts: prompts,
		cfg:     cfg,
		logger:  logger,
	}
}

// Name implements port.SummaryGenerator
func (s *Summarizer) Name() string {
	return "openai:" + s.cfg.Model
}

// Generate implements port.SummaryGenerator
func (s *Summarizer) Generate(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error) {
	if opts.Type == "" {
		opts.Type = entity.SummaryComprehensive
	}
	system, ok := s.prompts.Summary.Systems[string(opts.Type)]
	if !ok {
		return nil, fmt.Errorf("no prompt for summary type %q", opts.Type)
	}

	user, err := renderTemplate(s.prompts.Summary.UserTemplate, summary.BuildView(pc, opts))
	if err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.logger.Debug("Requesting summary",
		zap.String("patient_id", pc.PatientID),
		zap.String("type", string(opts.Type)))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		s.logger.Error("OpenAI API call failed", zap.String("patient_id", pc.PatientID), zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("empty summary from OpenAI")
	}

	s.logger.Info("Summary generated",
		zap.String("patient_id", pc.PatientID),
		zap.String("type", string(opts.Type)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return &entity.Summary{
		PatientID:   pc.PatientID,
		Type:        opts.Type,
		Content:     content,
		Generator:   s.Name(),
		GeneratedAt: time.Now(),
	}, nil
}

// Verify interface compliance
var _ port.SummaryGenerator = (*Summarizer)(nil)
