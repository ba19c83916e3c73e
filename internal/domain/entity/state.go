package entity

import "time"

// WorkflowState is a patient's current position in the workflow.
// Exactly one exists per patient.
type WorkflowState struct {
	PatientID        string    `json:"patient_id"`
	CurrentStatusID  string    `json:"current_status_id"`
	PreviousStatusID *string   `json:"previous_status_id,omitempty"`
	AssignedTo       *string   `json:"assigned_to,omitempty"`
	Notes            string    `json:"notes"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate shared pointers
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	if s.PreviousStatusID != nil {
		prev := *s.PreviousStatusID
		c.PreviousStatusID = &prev
	}
	if s.AssignedTo != nil {
		assignee := *s.AssignedTo
		c.AssignedTo = &assignee
	}
	return &c
}
