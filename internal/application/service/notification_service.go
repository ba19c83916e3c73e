package service

import (
	"context"
	"fmt"

	"github.com/garyjia/medoffice-workflow/internal/application/dispatcher"
	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/event"
)

// StatusNamer resolves a status id to its display name
type StatusNamer func(id string) string

// NotificationService tells the care team about workflow changes
type NotificationService interface {
	// Register subscribes the service to workflow events
	Register(d dispatcher.Dispatcher)
	HandleStatusChanged(ctx context.Context, evt *event.Event) error
	HandleApprovalRequired(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	sender port.MessageSender
	names  StatusNamer
	logger Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(sender port.MessageSender, names StatusNamer, logger Logger) NotificationService {
	if names == nil {
		names = func(id string) string { return id }
	}
	return &notificationServiceImpl{
		sender: sender,
		names:  names,
		logger: logger,
	}
}

// Register implements NotificationService
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeStatusChanged, "care_team_notifier", s.HandleStatusChanged)
	d.SubscribeNamed(event.TypeApprovalRequired, "care_team_notifier", s.HandleApprovalRequired)
}

// HandleStatusChanged implements NotificationService
func (s *notificationServiceImpl) HandleStatusChanged(ctx context.Context, evt *event.Event) error {
	msg := fmt.Sprintf("Patient %s moved from %s to %s by %s",
		evt.PatientID,
		s.names(evt.GetPayloadString(event.KeyFromStatus)),
		s.names(evt.GetPayloadString(event.KeyToStatus)),
		evt.GetPayloadString(event.KeyPerformedBy))
	if notes := evt.GetPayloadString(event.KeyNotes); notes != "" {
		msg += "\nNotes: " + notes
	}
	return s.send(ctx, evt, msg)
}

// HandleApprovalRequired implements NotificationService
func (s *notificationServiceImpl) HandleApprovalRequired(ctx context.Context, evt *event.Event) error {
	msg := fmt.Sprintf("Approval needed: %s requested %q for patient %s (%s -> %s)",
		evt.GetPayloadString(event.KeyPerformedBy),
		evt.GetPayloadString(event.KeyRuleName),
		evt.PatientID,
		s.names(evt.GetPayloadString(event.KeyFromStatus)),
		s.names(evt.GetPayloadString(event.KeyToStatus)))
	return s.send(ctx, evt, msg)
}

func (s *notificationServiceImpl) send(ctx context.Context, evt *event.Event, msg string) error {
	if err := s.sender.SendText(ctx, msg); err != nil {
		s.logger.Error("Failed to notify care team", "event_type", evt.Type, "patient_id", evt.PatientID, "error", err)
		return fmt.Errorf("notify care team: %w", err)
	}
	s.logger.Info("Care team notified", "event_type", evt.Type, "patient_id", evt.PatientID)
	return nil
}
