package entity

import "time"

// SummaryType selects the register of a generated patient summary
type SummaryType string

const (
	SummaryComprehensive   SummaryType = "comprehensive"
	SummaryConcise         SummaryType = "concise"
	SummarySpecialist      SummaryType = "specialist"
	SummaryPatientFriendly SummaryType = "patient-friendly"
)

// IsValid reports whether t is a known summary type
func (t SummaryType) IsValid() bool {
	switch t {
	case SummaryComprehensive, SummaryConcise, SummarySpecialist, SummaryPatientFriendly:
		return true
	default:
		return false
	}
}

// PatientContext is the input handed to a summary generator
type PatientContext struct {
	PatientID     string            `json:"patient_id"`
	CurrentStatus Status            `json:"current_status"`
	AssignedTo    string            `json:"assigned_to,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	History       []HistoryEntry    `json:"history"`
	StatusNames   map[string]string `json:"status_names"`
}

// StatusName returns the display name for a status id, falling back to the id
func (c PatientContext) StatusName(id string) string {
	if name, ok := c.StatusNames[id]; ok && name != "" {
		return name
	}
	return id
}

// SummaryOptions tunes generation
type SummaryOptions struct {
	Type           SummaryType `json:"type"`
	IncludeHistory bool        `json:"include_history"`
}

// Summary is a generated report
type Summary struct {
	PatientID   string      `json:"patient_id"`
	Type        SummaryType `json:"type"`
	Content     string      `json:"content"`
	Generator   string      `json:"generator"`
	GeneratedAt time.Time   `json:"generated_at"`
}
