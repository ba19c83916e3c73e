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

const historyColumns = `seq, id, patient_id, from_status_id, to_status_id, performed_by,
			notes, approved, idempotency_key, timestamp`

// HistoryRepository implements port.HistoryRepository. Rows are insert-only.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

func scanEntry(row rowScanner) (*entity.HistoryEntry, error) {
	var entry entity.HistoryEntry
	var from, key sql.NullString

	err := row.Scan(
		&entry.Sequence,
		&entry.ID,
		&entry.PatientID,
		&from,
		&entry.ToStatusID,
		&entry.PerformedBy,
		&entry.Notes,
		&entry.Approved,
		&key,
		&entry.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	entry.FromStatusID = stringPtr(from)
	entry.IdempotencyKey = key.String
	return &entry, nil
}

// Append inserts an entry and sets its Sequence. A second entry with the same
// patient and idempotency key fails with ErrConflict.
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO workflow_history (
			id, patient_id, from_status_id, to_status_id, performed_by,
			notes, approved, idempotency_key, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		nullString(entry.FromStatusID),
		entry.ToStatusID,
		entry.PerformedBy,
		entry.Notes,
		entry.Approved,
		nullIfEmpty(entry.IdempotencyKey),
		entry.Timestamp.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) && entry.IdempotencyKey != "" {
			return fmt.Errorf("%w: idempotency key %s already recorded for %s",
				domainwf.ErrConflict, entry.IdempotencyKey, entry.PatientID)
		}
		r.logger.Error("Failed to append history", zap.String("patient_id", entry.PatientID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.Sequence = seq
	return nil
}

// ListByPatient returns the patient's entries ordered by timestamp, then sequence
func (r *HistoryRepository) ListByPatient(ctx context.Context, patientID string) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM workflow_history
		WHERE patient_id = ?
		ORDER BY timestamp ASC, seq ASC
	`
	return r.query(ctx, "list history", query, patientID)
}

// GetByIdempotencyKey returns the entry recorded under key, or nil
func (r *HistoryRepository) GetByIdempotencyKey(ctx context.Context, patientID, key string) (*entity.HistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM workflow_history
		WHERE patient_id = ? AND idempotency_key = ?
	`

	entry, err := scanEntry(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, patientID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get history by key", zap.String("patient_id", patientID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history by key: %w", err)
	}
	return entry, nil
}

// List returns entries across all patients in insertion order
func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM workflow_history
		ORDER BY seq ASC
		LIMIT ? OFFSET ?
	`
	return r.query(ctx, "list all history", query, limitOrAll(limit), offset)
}

func (r *HistoryRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.HistoryEntry, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var entries []*entity.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
