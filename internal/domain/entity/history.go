package entity

import "time"

// HistoryEntry is the immutable audit record of one applied transition
type HistoryEntry struct {
	// Sequence is assigned by the store and breaks timestamp ties
	Sequence       int64     `json:"sequence"`
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	FromStatusID   *string   `json:"from_status_id,omitempty"`
	ToStatusID     string    `json:"to_status_id"`
	PerformedBy    string    `json:"performed_by"`
	Notes          string    `json:"notes"`
	Approved       bool      `json:"approved"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// From returns the source status id, or "" for an initial entry
func (h *HistoryEntry) From() string {
	if h.FromStatusID == nil {
		return ""
	}
	return *h.FromStatusID
}
