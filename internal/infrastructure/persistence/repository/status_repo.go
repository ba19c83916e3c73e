package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StatusRepository implements port.StatusRepository
type StatusRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStatusRepository creates a new status repository
func NewStatusRepository(db *sql.DB, logger *zap.Logger) port.StatusRepository {
	return &StatusRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a status
func (r *StatusRepository) Create(ctx context.Context, status *entity.Status) error {
	query := `
		INSERT INTO statuses (id, name, color, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if status.CreatedAt.IsZero() {
		status.CreatedAt = nowUTC()
	}

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		status.ID,
		status.Name,
		status.Color,
		status.Description,
		status.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domainwf.ErrDuplicateID, status.ID)
		}
		r.logger.Error("Failed to create status", zap.String("status_id", status.ID), zap.Error(err))
		return fmt.Errorf("failed to create status: %w", err)
	}
	return nil
}

// GetByID retrieves a status by id
func (r *StatusRepository) GetByID(ctx context.Context, id string) (*entity.Status, error) {
	query := `
		SELECT id, name, color, description, created_at
		FROM statuses
		WHERE id = ?
	`

	var status entity.Status
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&status.ID,
		&status.Name,
		&status.Color,
		&status.Description,
		&status.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get status", zap.String("status_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &status, nil
}

// List returns all statuses in creation order
func (r *StatusRepository) List(ctx context.Context) ([]*entity.Status, error) {
	query := `
		SELECT id, name, color, description, created_at
		FROM statuses
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list statuses", zap.Error(err))
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*entity.Status
	for rows.Next() {
		var status entity.Status
		if err := rows.Scan(&status.ID, &status.Name, &status.Color, &status.Description, &status.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, &status)
	}
	return statuses, rows.Err()
}

// Delete removes a status
func (r *StatusRepository) Delete(ctx context.Context, id string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, "DELETE FROM statuses WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete status", zap.String("status_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete status: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.StatusRepository = (*StatusRepository)(nil)
