package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/medoffice-workflow/internal/application/dispatcher"
	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	"github.com/garyjia/medoffice-workflow/internal/domain/event"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
	"github.com/garyjia/medoffice-workflow/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CatalogService manages the status catalog and transition rules, keeping
// the in-memory registry and the store in step
type CatalogService interface {
	// Load hydrates the registry and rules from the store, seeding the
	// default workflow first when the store is empty and seeding is enabled
	Load(ctx context.Context) error

	ListStatuses() []entity.Status
	GetStatus(id string) (entity.Status, error)
	AddStatus(ctx context.Context, status entity.Status) (entity.Status, error)
	// RemoveStatus deletes an unreferenced status and every rule naming it
	RemoveStatus(ctx context.Context, id string) error

	ListRules() []entity.TransitionRule
	AddRule(ctx context.Context, rule entity.TransitionRule) (entity.TransitionRule, error)
	RemoveRule(ctx context.Context, from, to string) error
}

type catalogServiceImpl struct {
	// mu serializes catalog mutations so rule validation and status removal
	// never interleave
	mu sync.Mutex

	registry   *domainwf.StatusRegistry
	rules      *domainwf.TransitionRules
	statusRepo port.StatusRepository
	ruleRepo   port.RuleRepository
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger

	seedDefaults bool
}

// CatalogOption configures the catalog service
type CatalogOption func(*catalogServiceImpl)

// WithSeedDefaults seeds the default medical-office workflow into an empty store
func WithSeedDefaults(seed bool) CatalogOption {
	return func(s *catalogServiceImpl) {
		s.seedDefaults = seed
	}
}

// WithCatalogDispatcher emits catalog change events
func WithCatalogDispatcher(d dispatcher.Dispatcher) CatalogOption {
	return func(s *catalogServiceImpl) {
		s.dispatcher = d
	}
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	registry *domainwf.StatusRegistry,
	rules *domainwf.TransitionRules,
	statusRepo port.StatusRepository,
	ruleRepo port.RuleRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...CatalogOption,
) CatalogService {
	s := &catalogServiceImpl{
		registry:   registry,
		rules:      rules,
		statusRepo: statusRepo,
		ruleRepo:   ruleRepo,
		txManager:  txManager,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements CatalogService
func (s *catalogServiceImpl) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses, err := s.statusRepo.List(ctx)
	if err != nil {
		return domainwf.WrapStorage("load statuses", err)
	}

	if len(statuses) == 0 && s.seedDefaults {
		if err := s.seed(ctx); err != nil {
			return err
		}
		if statuses, err = s.statusRepo.List(ctx); err != nil {
			return domainwf.WrapStorage("load statuses", err)
		}
	}

	for _, status := range statuses {
		if err := s.registry.Add(*status); err != nil && !errors.Is(err, domainwf.ErrDuplicateID) {
			return fmt.Errorf("hydrate status %s: %w", status.ID, err)
		}
	}

	rules, err := s.ruleRepo.List(ctx)
	if err != nil {
		return domainwf.WrapStorage("load rules", err)
	}
	for _, rule := range rules {
		if _, err := s.rules.AddRuleWith(*rule, nil); err != nil {
			if errors.Is(err, domainwf.ErrDuplicateRule) {
				continue
			}
			s.logger.Error("Skipping stored rule", "from", rule.FromStatus, "to", rule.ToStatus, "error", err)
		}
	}

	s.logger.Info("Workflow catalog loaded", "statuses", s.registry.Len(), "rules", s.rules.Len())
	return nil
}

// seed writes the default statuses and rules in one transaction
func (s *catalogServiceImpl) seed(ctx context.Context) error {
	scratch := domainwf.NewStatusRegistry(nil)
	for _, status := range workflow.DefaultStatuses() {
		if err := scratch.Add(status); err != nil {
			return err
		}
	}
	defaults, err := workflow.BuildDefaultRules(scratch)
	if err != nil {
		return err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, status := range scratch.List() {
			if err := s.statusRepo.Create(txCtx, &status); err != nil {
				return err
			}
		}
		for _, rule := range defaults.List() {
			if err := s.ruleRepo.Create(txCtx, &rule); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domainwf.WrapStorage("seed default workflow", err)
	}

	s.logger.Info("Seeded default workflow", "statuses", scratch.Len(), "rules", defaults.Len())
	return nil
}

// ListStatuses implements CatalogService
func (s *catalogServiceImpl) ListStatuses() []entity.Status {
	return s.registry.List()
}

// GetStatus implements CatalogService
func (s *catalogServiceImpl) GetStatus(id string) (entity.Status, error) {
	return s.registry.Get(id)
}

// AddStatus implements CatalogService
func (s *catalogServiceImpl) AddStatus(ctx context.Context, status entity.Status) (entity.Status, error) {
	status, err := cleanStatus(status)
	if err != nil {
		return entity.Status{}, err
	}
	if status.CreatedAt.IsZero() {
		status.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.registry.AddWith(status, func(st entity.Status) error {
		return domainwf.WrapStorage("create status", s.statusRepo.Create(ctx, &st))
	})
	if err != nil {
		return entity.Status{}, err
	}

	s.logger.Info("Status added", "status_id", status.ID, "name", status.Name)
	s.emit(ctx, event.TypeStatusAdded, map[string]interface{}{event.KeyStatusID: status.ID})
	return s.registry.Get(status.ID)
}

// cleanStatus checks a caller-supplied status and strips control characters
// from its free-text fields
func cleanStatus(status entity.Status) (entity.Status, error) {
	status.ID = strings.TrimSpace(status.ID)
	if err := utils.ValidateStatusID(status.ID); err != nil {
		return status, fmt.Errorf("%w: %v", domainwf.ErrInvalidStatus, err)
	}
	if err := utils.ValidateColor(status.Color); err != nil {
		return status, fmt.Errorf("%w: %v", domainwf.ErrInvalidStatus, err)
	}
	status.Name = utils.SanitizeString(status.Name)
	status.Description = utils.SanitizeString(status.Description)
	return status, nil
}

// RemoveStatus implements CatalogService
func (s *catalogServiceImpl) RemoveStatus(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []entity.TransitionRule
	err := s.registry.RemoveWith(ctx, id, func(ctx context.Context) error {
		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := s.ruleRepo.DeleteReferencing(txCtx, id); err != nil {
				return err
			}
			return s.statusRepo.Delete(txCtx, id)
		})
		if err != nil {
			return domainwf.WrapStorage("delete status", err)
		}
		dropped = s.rules.RemoveReferencing(id)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Status removed", "status_id", id, "rules_removed", len(dropped))
	s.emit(ctx, event.TypeStatusRemoved, map[string]interface{}{event.KeyStatusID: id})
	return nil
}

// ListRules implements CatalogService
func (s *catalogServiceImpl) ListRules() []entity.TransitionRule {
	return s.rules.List()
}

// AddRule implements CatalogService
func (s *catalogServiceImpl) AddRule(ctx context.Context, rule entity.TransitionRule) (entity.TransitionRule, error) {
	rule.FromStatus = strings.TrimSpace(rule.FromStatus)
	rule.ToStatus = strings.TrimSpace(rule.ToStatus)
	rule.Name = utils.SanitizeString(rule.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	added, err := s.rules.AddRuleWith(rule, func(r *entity.TransitionRule) error {
		return domainwf.WrapStorage("create rule", s.ruleRepo.Create(ctx, r))
	})
	if err != nil {
		return entity.TransitionRule{}, err
	}

	s.logger.Info("Rule added", "from", added.FromStatus, "to", added.ToStatus, "requires_approval", added.RequiresApproval)
	s.emit(ctx, event.TypeRuleAdded, map[string]interface{}{
		event.KeyFromStatus: added.FromStatus,
		event.KeyToStatus:   added.ToStatus,
		event.KeyRuleName:   added.Name,
	})
	return added, nil
}

// RemoveRule implements CatalogService
func (s *catalogServiceImpl) RemoveRule(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.rules.RemoveRuleWith(from, to, func(r entity.TransitionRule) error {
		return domainwf.WrapStorage("delete rule", s.ruleRepo.Delete(ctx, r.FromStatus, r.ToStatus))
	})
	if err != nil {
		return err
	}

	s.logger.Info("Rule removed", "from", from, "to", to)
	s.emit(ctx, event.TypeRuleRemoved, map[string]interface{}{
		event.KeyFromStatus: from,
		event.KeyToStatus:   to,
	})
	return nil
}

func (s *catalogServiceImpl) emit(ctx context.Context, eventType event.Type, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(eventType, "", payload))
}
