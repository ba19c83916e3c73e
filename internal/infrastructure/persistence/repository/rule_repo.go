package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a rule and sets its ID
func (r *RuleRepository) Create(ctx context.Context, rule *entity.TransitionRule) error {
	query := `
		INSERT INTO transition_rules (from_status, to_status, name, requires_approval, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = nowUTC()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rule.FromStatus,
		rule.ToStatus,
		rule.Name,
		rule.RequiresApproval,
		rule.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s -> %s", domainwf.ErrDuplicateRule, rule.FromStatus, rule.ToStatus)
		}
		r.logger.Error("Failed to create rule",
			zap.String("from", rule.FromStatus), zap.String("to", rule.ToStatus), zap.Error(err))
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rule.ID = id
	return nil
}

// List returns all rules in declaration order
func (r *RuleRepository) List(ctx context.Context) ([]*entity.TransitionRule, error) {
	query := `
		SELECT id, from_status, to_status, name, requires_approval, created_at
		FROM transition_rules
		ORDER BY id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list rules", zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.TransitionRule
	for rows.Next() {
		var rule entity.TransitionRule
		err := rows.Scan(
			&rule.ID,
			&rule.FromStatus,
			&rule.ToStatus,
			&rule.Name,
			&rule.RequiresApproval,
			&rule.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Delete removes the rule for the exact (from, to) pair
func (r *RuleRepository) Delete(ctx context.Context, fromStatus, toStatus string) error {
	query := "DELETE FROM transition_rules WHERE from_status = ? AND to_status = ?"

	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, fromStatus, toStatus); err != nil {
		r.logger.Error("Failed to delete rule",
			zap.String("from", fromStatus), zap.String("to", toStatus), zap.Error(err))
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// DeleteReferencing removes every rule that names statusID on either side
func (r *RuleRepository) DeleteReferencing(ctx context.Context, statusID string) (int64, error) {
	query := "DELETE FROM transition_rules WHERE from_status = ? OR to_status = ?"

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, statusID, statusID)
	if err != nil {
		r.logger.Error("Failed to delete rules for status", zap.String("status_id", statusID), zap.Error(err))
		return 0, fmt.Errorf("failed to delete rules: %w", err)
	}
	return result.RowsAffected()
}

// Verify interface compliance
var _ port.RuleRepository = (*RuleRepository)(nil)
