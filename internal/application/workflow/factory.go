package workflow

import (
	"context"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// Default medical-office status ids
const (
	StatusNew         = "new"
	StatusIntake      = "intake"
	StatusInTreatment = "in_treatment"
	StatusFollowUp    = "follow_up"
	StatusOnHold      = "on_hold"
	StatusDischarged  = "discharged"
)

// DefaultStatuses returns the seed catalog for a new installation
func DefaultStatuses() []entity.Status {
	return []entity.Status{
		{ID: StatusNew, Name: "New Patient", Color: "#64748b", Description: "Registered, not yet seen"},
		{ID: StatusIntake, Name: "Intake", Color: "#0ea5e9", Description: "Collecting history and insurance details"},
		{ID: StatusInTreatment, Name: "In Treatment", Color: "#22c55e", Description: "Under active care"},
		{ID: StatusFollowUp, Name: "Follow-up", Color: "#eab308", Description: "Awaiting follow-up visit"},
		{ID: StatusOnHold, Name: "On Hold", Color: "#f97316", Description: "Paused pending patient or payer"},
		{ID: StatusDischarged, Name: "Discharged", Color: "#a855f7", Description: "Care episode closed"},
	}
}

// BuildDefaultRules creates the seed rule set. Every status it names must
// already be registered.
func BuildDefaultRules(registry *domainwf.StatusRegistry) (*domainwf.TransitionRules, error) {
	builder := domainwf.NewBuilder(registry)

	builder.ConfigureAny().
		Permit(StatusInTreatment, "Start treatment").
		Permit(StatusOnHold, "Put on hold")

	builder.Configure(StatusNew).
		Permit(StatusIntake, "Begin intake")

	builder.Configure(StatusInTreatment).
		PermitWithApproval(StatusFollowUp, "Schedule follow-up").
		PermitWithApproval(StatusDischarged, "Discharge")

	builder.Configure(StatusFollowUp).
		Permit(StatusInTreatment, "Resume treatment").
		PermitWithApproval(StatusDischarged, "Discharge")

	builder.Configure(StatusOnHold).
		Permit(StatusIntake, "Resume intake")

	return builder.Build()
}

// NewReferenceChecker reports a status as referenced while any workflow state points at it
func NewReferenceChecker(repo port.WorkflowStateRepository) domainwf.ReferenceChecker {
	return domainwf.ReferenceCheckerFunc(func(ctx context.Context, statusID string) (bool, error) {
		n, err := repo.CountByStatus(ctx, statusID)
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}
