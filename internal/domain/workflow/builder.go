package workflow

import (
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// RuleSetBuilder builds a TransitionRules set with a fluent API
type RuleSetBuilder interface {
	// Configure returns the configuration for moves out of from
	Configure(from string) RuleConfiguration

	// ConfigureAny returns the configuration for wildcard moves
	ConfigureAny() RuleConfiguration

	// Build creates the rule set, failing on the first invalid or duplicate rule
	Build() (*TransitionRules, error)
}

// RuleConfiguration declares moves out of one source status
type RuleConfiguration interface {
	// Permit allows a move to the target status
	Permit(to, name string) RuleConfiguration

	// PermitWithApproval allows a move that needs approval
	PermitWithApproval(to, name string) RuleConfiguration
}

type ruleConfig struct {
	builder *ruleSetBuilder
	from    string
}

type ruleSetBuilder struct {
	registry *StatusRegistry
	configs  map[string]*ruleConfig
	pending  []entity.TransitionRule
}

// NewBuilder creates a rule-set builder validated against registry
func NewBuilder(registry *StatusRegistry) RuleSetBuilder {
	return &ruleSetBuilder{
		registry: registry,
		configs:  make(map[string]*ruleConfig),
	}
}

// Configure returns the configuration for moves out of from
func (b *ruleSetBuilder) Configure(from string) RuleConfiguration {
	config, exists := b.configs[from]
	if !exists {
		config = &ruleConfig{builder: b, from: from}
		b.configs[from] = config
	}
	return config
}

// ConfigureAny returns the configuration for wildcard moves
func (b *ruleSetBuilder) ConfigureAny() RuleConfiguration {
	return b.Configure(entity.AnyStatus)
}

// Build creates the rule set
func (b *ruleSetBuilder) Build() (*TransitionRules, error) {
	rules := NewTransitionRules(b.registry)
	for _, rule := range b.pending {
		if _, err := rules.AddRule(rule.FromStatus, rule.ToStatus, rule.Name, rule.RequiresApproval); err != nil {
			return nil, fmt.Errorf("build rule %q: %w", rule.Name, err)
		}
	}
	return rules, nil
}

// Permit allows a move to the target status
func (c *ruleConfig) Permit(to, name string) RuleConfiguration {
	return c.permit(to, name, false)
}

// PermitWithApproval allows a move that needs approval
func (c *ruleConfig) PermitWithApproval(to, name string) RuleConfiguration {
	return c.permit(to, name, true)
}

func (c *ruleConfig) permit(to, name string, requiresApproval bool) RuleConfiguration {
	c.builder.pending = append(c.builder.pending, entity.TransitionRule{
		FromStatus:       c.from,
		ToStatus:         to,
		Name:             name,
		RequiresApproval: requiresApproval,
	})
	return c
}
