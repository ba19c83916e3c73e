package event

// Type identifies the type of domain event
type Type string

const (
	TypeStatusChanged    Type = "workflow.status_changed"
	TypeApprovalRequired Type = "workflow.approval_required"
	TypeStatusAdded      Type = "catalog.status_added"
	TypeStatusRemoved    Type = "catalog.status_removed"
	TypeRuleAdded        Type = "catalog.rule_added"
	TypeRuleRemoved      Type = "catalog.rule_removed"
	TypeSummaryGenerated Type = "summary.generated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStatusChanged,
		TypeApprovalRequired,
		TypeStatusAdded,
		TypeStatusRemoved,
		TypeRuleAdded,
		TypeRuleRemoved,
		TypeSummaryGenerated:
		return true
	default:
		return false
	}
}
