package port

import (
	"context"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// SummaryGenerator produces a patient summary from workflow context
type SummaryGenerator interface {
	Generate(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error)
	// Name identifies the generator in stored summaries and logs
	Name() string
}

// PatientLocker serializes work per patient. Lock blocks until the lock is
// held or ctx is done.
type PatientLocker interface {
	Lock(ctx context.Context, patientID string) (unlock func(), err error)
}

// MessageSender posts a plain-text message to the care-team channel
type MessageSender interface {
	SendText(ctx context.Context, content string) error
}
