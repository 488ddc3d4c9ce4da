package models

import (
	"time"

	"github.com/google/uuid"
)

// RefundType records the refund decision of an approved cancellation.
type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
	RefundTypeNone    RefundType = "none"
)

// CancellationRequest records an approved cancellation decision for one
// registration. Terminal once approved. CancelRequested distinguishes a real
// cancellation from a refund-only decision that keeps the child enrolled.
type CancellationRequest struct {
	ID              uuid.UUID  `json:"id"`
	RegistrationID  uuid.UUID  `json:"registration_id"`
	RefundType      RefundType `json:"refund_type"`
	CancelRequested bool       `json:"cancel_requested"`
	AdminNotes      string     `json:"admin_notes"`
	CreditNoteID    *uuid.UUID `json:"credit_note_id"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
}
