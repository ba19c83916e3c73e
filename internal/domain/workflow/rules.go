package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

type ruleKey struct {
	from string
	to   string
}

// TransitionRules declares which status moves are permitted.
// An exact (from, to) rule always wins over an (any, to) wildcard rule.
type TransitionRules struct {
	mu       sync.RWMutex
	registry *StatusRegistry
	rules    map[ruleKey]entity.TransitionRule
	order    []ruleKey
}

// NewTransitionRules creates an empty rule set validated against registry
func NewTransitionRules(registry *StatusRegistry) *TransitionRules {
	return &TransitionRules{
		registry: registry,
		rules:    make(map[ruleKey]entity.TransitionRule),
	}
}

// AddRule declares a permitted move. from may be entity.AnyStatus.
func (t *TransitionRules) AddRule(from, to, name string, requiresApproval bool) (entity.TransitionRule, error) {
	return t.AddRuleWith(entity.TransitionRule{
		FromStatus:       from,
		ToStatus:         to,
		Name:             name,
		RequiresApproval: requiresApproval,
	}, nil)
}

// AddRuleWith validates rule, runs persist under the rule-set lock (persist may
// assign the rule ID) and then makes the rule active.
func (t *TransitionRules) AddRuleWith(rule entity.TransitionRule, persist func(*entity.TransitionRule) error) (entity.TransitionRule, error) {
	if err := t.validate(rule); err != nil {
		return entity.TransitionRule{}, err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	key := ruleKey{from: rule.FromStatus, to: rule.ToStatus}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.rules[key]; exists {
		return entity.TransitionRule{}, fmt.Errorf("%w: %s -> %s", ErrDuplicateRule, rule.FromStatus, rule.ToStatus)
	}

	if persist != nil {
		if err := persist(&rule); err != nil {
			return entity.TransitionRule{}, err
		}
	}

	t.rules[key] = rule
	t.order = append(t.order, key)
	return rule, nil
}

func (t *TransitionRules) validate(rule entity.TransitionRule) error {
	if rule.ToStatus == "" || rule.ToStatus == entity.AnyStatus {
		return fmt.Errorf("%w: rule target must be a concrete status, got %q", ErrInvalidStatus, rule.ToStatus)
	}
	if rule.FromStatus == "" {
		return fmt.Errorf("%w: rule source is required", ErrInvalidStatus)
	}
	if rule.FromStatus == rule.ToStatus {
		return fmt.Errorf("%w: rule from %s to itself", ErrNoOpTransition, rule.FromStatus)
	}
	if t.registry == nil {
		return nil
	}
	if !t.registry.Has(rule.ToStatus) {
		return fmt.Errorf("%w: %s", ErrNotFound, rule.ToStatus)
	}
	if rule.FromStatus != entity.AnyStatus && !t.registry.Has(rule.FromStatus) {
		return fmt.Errorf("%w: %s", ErrNotFound, rule.FromStatus)
	}
	return nil
}

// IsAllowed returns the rule permitting from -> to. An exact rule is
// preferred, then an (any -> to) rule.
func (t *TransitionRules) IsAllowed(from, to string) (entity.TransitionRule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.match(from, to)
}

func (t *TransitionRules) match(from, to string) (entity.TransitionRule, bool) {
	if rule, ok := t.rules[ruleKey{from: from, to: to}]; ok {
		return rule, true
	}
	if rule, ok := t.rules[ruleKey{from: entity.AnyStatus, to: to}]; ok {
		return rule, true
	}
	return entity.TransitionRule{}, false
}

// RequiresApproval reports whether the rule matching from -> to is
// approval-gated. It fails with ErrNoRule when nothing matches.
func (t *TransitionRules) RequiresApproval(from, to string) (bool, error) {
	rule, ok := t.IsAllowed(from, to)
	if !ok {
		return false, fmt.Errorf("%w: %s -> %s", ErrNoRule, from, to)
	}
	return rule.RequiresApproval, nil
}

// RemoveRule deletes the rule declared for the exact (from, to) pair
func (t *TransitionRules) RemoveRule(from, to string) error {
	return t.RemoveRuleWith(from, to, nil)
}

// RemoveRuleWith deletes the rule for the exact (from, to) pair after persist succeeds
func (t *TransitionRules) RemoveRuleWith(from, to string, persist func(entity.TransitionRule) error) error {
	key := ruleKey{from: from, to: to}

	t.mu.Lock()
	defer t.mu.Unlock()

	rule, ok := t.rules[key]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrNoRule, from, to)
	}

	if persist != nil {
		if err := persist(rule); err != nil {
			return err
		}
	}

	t.remove(key)
	return nil
}

// RemoveReferencing drops every rule whose source or target is statusID and
// returns what was removed
func (t *TransitionRules) RemoveReferencing(statusID string) []entity.TransitionRule {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []entity.TransitionRule
	for _, key := range append([]ruleKey(nil), t.order...) {
		if key.from == statusID || key.to == statusID {
			removed = append(removed, t.rules[key])
			t.remove(key)
		}
	}
	return removed
}

func (t *TransitionRules) remove(key ruleKey) {
	delete(t.rules, key)
	for i, existing := range t.order {
		if existing == key {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			return
		}
	}
}

// Outgoing returns the rules that would match a move out of from, one per
// target status, in declaration order. Exact rules shadow wildcards.
func (t *TransitionRules) Outgoing(from string) []entity.TransitionRule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]bool)
	var out []entity.TransitionRule
	for _, key := range t.order {
		if key.to == from || seen[key.to] {
			continue
		}
		if key.from != from && key.from != entity.AnyStatus {
			continue
		}
		rule, _ := t.match(from, key.to)
		seen[key.to] = true
		out = append(out, rule)
	}
	return out
}

// List returns all rules in declaration order
func (t *TransitionRules) List() []entity.TransitionRule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]entity.TransitionRule, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.rules[key])
	}
	return out
}

// Len returns the number of active rules
func (t *TransitionRules) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
