package entity

import "time"

// Status is a named stage in a patient's care lifecycle
type Status struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnyStatus is the wildcard source of a TransitionRule
const AnyStatus = "any"

// TransitionRule declares a permitted move between statuses
type TransitionRule struct {
	ID               int64     `json:"id"`
	FromStatus       string    `json:"from_status"`
	ToStatus         string    `json:"to_status"`
	Name             string    `json:"name"`
	RequiresApproval bool      `json:"requires_approval"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsWildcard reports whether the rule matches any current status
func (r TransitionRule) IsWildcard() bool {
	return r.FromStatus == AnyStatus
}
