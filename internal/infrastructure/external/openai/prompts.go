package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptConfig holds the summary prompts and model parameters
type PromptConfig struct {
	Summary struct {
		Temperature  float32           `yaml:"temperature"`
		MaxTokens    int               `yaml:"max_tokens"`
		Systems      map[string]string `yaml:"systems"`
		UserTemplate string            `yaml:"user_template"`
	} `yaml:"summary"`
}

// DefaultPrompts returns the prompts shipped with the binary
func DefaultPrompts() (*PromptConfig, error) {
	return parsePrompts(defaultPrompts)
}

// LoadPrompts loads prompt configuration from a YAML file, or the built-in
// prompts when path is empty
func LoadPrompts(path string) (*PromptConfig, error) {
	if path == "" {
		return DefaultPrompts()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return parsePrompts(data)
}

func parsePrompts(data []byte) (*PromptConfig, error) {
	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.Summary.UserTemplate == "" {
		return nil, fmt.Errorf("prompts: summary.user_template is empty")
	}
	return &prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
