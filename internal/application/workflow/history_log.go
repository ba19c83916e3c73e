package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// ErrHistoryDiverged is returned by Verify when the history does not fold to the stored state
var ErrHistoryDiverged = errors.New("history diverges from workflow state")

// HistoryLog is the append-only audit trail of applied transitions
type HistoryLog struct {
	repo port.HistoryRepository
}

// NewHistoryLog creates a history log
func NewHistoryLog(repo port.HistoryRepository) *HistoryLog {
	return &HistoryLog{repo: repo}
}

// Append records an entry. Entries are never updated or deleted.
func (h *HistoryLog) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	return domainwf.WrapStorage("append history", h.repo.Append(ctx, entry))
}

// ListForPatient returns the patient's entries in chronological order
func (h *HistoryLog) ListForPatient(ctx context.Context, patientID string) ([]entity.HistoryEntry, error) {
	rows, err := h.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, domainwf.WrapStorage("load history", err)
	}
	out := make([]entity.HistoryEntry, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, nil
}

// FindByKey returns the entry recorded under an idempotency key, or nil
func (h *HistoryLog) FindByKey(ctx context.Context, patientID, key string) (*entity.HistoryEntry, error) {
	entry, err := h.repo.GetByIdempotencyKey(ctx, patientID, key)
	if err != nil {
		return nil, domainwf.WrapStorage("load history by key", err)
	}
	return entry, nil
}

// Replay folds entries from initialStatusID and returns the resulting status
func Replay(initialStatusID string, entries []entity.HistoryEntry) string {
	current := initialStatusID
	for _, entry := range entries {
		current = entry.ToStatusID
	}
	return current
}

// Verify checks that each entry starts where the previous one ended and
// that the last entry lands on the state's current status.
func Verify(state *entity.WorkflowState, entries []entity.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := 1; i < len(entries); i++ {
		if from := entries[i].From(); from != entries[i-1].ToStatusID {
			return fmt.Errorf("%w: entry %s starts at %q, previous entry ended at %q",
				ErrHistoryDiverged, entries[i].ID, from, entries[i-1].ToStatusID)
		}
	}

	if got := Replay(entries[0].From(), entries); got != state.CurrentStatusID {
		return fmt.Errorf("%w: history ends at %q, state is %q", ErrHistoryDiverged, got, state.CurrentStatusID)
	}
	return nil
}
