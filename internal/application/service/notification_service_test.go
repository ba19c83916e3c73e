package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/garyjia/medoffice-workflow/internal/application/dispatcher"
	"github.com/garyjia/medoffice-workflow/internal/domain/event"
)

func testNames(id string) string {
	switch id {
	case "new":
		return "New patient"
	case "in_treatment":
		return "In treatment"
	}
	return id
}

func TestNotificationService_StatusChanged(t *testing.T) {
	sender := &mockSender{}
	svc := NewNotificationService(sender, testNames, noopLogger{})

	evt := event.NewEvent(event.TypeStatusChanged, "p-9", map[string]interface{}{
		event.KeyFromStatus:  "new",
		event.KeyToStatus:    "in_treatment",
		event.KeyPerformedBy: "dr.ng",
		event.KeyNotes:       "first visit",
	})
	if err := svc.HandleStatusChanged(context.Background(), evt); err != nil {
		t.Fatalf("HandleStatusChanged() error = %v", err)
	}

	if len(sender.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.messages))
	}
	msg := sender.messages[0]
	for _, want := range []string{"p-9", "New patient", "In treatment", "dr.ng", "Notes: first visit"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestNotificationService_ApprovalRequired(t *testing.T) {
	sender := &mockSender{}
	svc := NewNotificationService(sender, nil, noopLogger{})

	evt := event.NewEvent(event.TypeApprovalRequired, "p-9", map[string]interface{}{
		event.KeyFromStatus:  "in_treatment",
		event.KeyToStatus:    "discharged",
		event.KeyPerformedBy: "nurse.ali",
		event.KeyRuleName:    "Discharge",
	})
	if err := svc.HandleApprovalRequired(context.Background(), evt); err != nil {
		t.Fatalf("HandleApprovalRequired() error = %v", err)
	}
	if !strings.Contains(sender.messages[0], `"Discharge"`) || !strings.Contains(sender.messages[0], "in_treatment -> discharged") {
		t.Errorf("message = %q", sender.messages[0])
	}
}

func TestNotificationService_SendFailure(t *testing.T) {
	sender := &mockSender{sendErr: errors.New("channel archived")}
	svc := NewNotificationService(sender, nil, noopLogger{})

	err := svc.HandleStatusChanged(context.Background(), event.NewEvent(event.TypeStatusChanged, "p-1", nil))
	if err == nil || !strings.Contains(err.Error(), "channel archived") {
		t.Errorf("HandleStatusChanged() error = %v", err)
	}
}

func TestNotificationService_Register(t *testing.T) {
	sender := &mockSender{}
	d := dispatcher.NewDispatcher()
	defer d.Close()

	NewNotificationService(sender, nil, noopLogger{}).Register(d)

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeStatusChanged, "p-2", map[string]interface{}{
		event.KeyFromStatus: "new",
		event.KeyToStatus:   "intake",
	}))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(sender.messages) != 1 {
		t.Errorf("sent %d messages, want 1", len(sender.messages))
	}
}
