package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditNoteStatus tracks whether the note's document has been dispatched.
type CreditNoteStatus string

const (
	CreditNoteIssued CreditNoteStatus = "issued"
	CreditNoteSent   CreditNoteStatus = "sent"
)

// CreditNoteType discriminates overpayment credits from cancellation refunds.
type CreditNoteType string

const (
	CreditNoteOverpayment  CreditNoteType = "overpayment"
	CreditNoteCancellation CreditNoteType = "cancellation"
)

// CreditNote is a monetary credit issued to a user, offsetting an invoice or
// refunding a cancellation.
type CreditNote struct {
	ID                    uuid.UUID        `json:"id"`
	CreditNoteNumber      string           `json:"credit_note_number"`
	Amount                decimal.Decimal  `json:"amount"`
	Status                CreditNoteStatus `json:"status"`
	Type                  CreditNoteType   `json:"type"`
	UserID                uuid.UUID        `json:"user_id"`
	RegistrationID        uuid.UUID        `json:"registration_id"`
	InvoiceID             *uuid.UUID       `json:"invoice_id"`
	CancellationRequestID *uuid.UUID       `json:"cancellation_request_id"`
	SourceTransactionID   *uuid.UUID       `json:"source_transaction_id"`
	CreatedAt             time.Time        `json:"created_at"`
}

// RefundMode selects how a cancellation credit amount is determined.
type RefundMode string

const (
	RefundFull    RefundMode = "full"
	RefundPartial RefundMode = "partial"
	RefundCustom  RefundMode = "custom"
)

// CreditNoteInput is the admin cancellation/refund request. The mode decides
// which fields are required: partial and custom need registration_ids, custom
// additionally needs a positive amount.
type CreditNoteInput struct {
	InvoiceID           uuid.UUID        `json:"invoice_id"`
	Mode                RefundMode       `json:"mode"`
	RegistrationIDs     []uuid.UUID      `json:"registration_ids"`
	Amount              *decimal.Decimal `json:"amount"`
	CancelRegistrations bool             `json:"cancel_registrations"`
	AdminNotes          string           `json:"admin_notes"`
}

func (c *CreditNoteInput) Validate() string {
	if c.InvoiceID == uuid.Nil {
		return "invoice_id is required"
	}
	switch c.Mode {
	case RefundFull:
	case RefundPartial:
		if len(c.RegistrationIDs) == 0 {
			return "registration_ids is required for partial mode"
		}
	case RefundCustom:
		if len(c.RegistrationIDs) == 0 {
			return "registration_ids is required for custom mode"
		}
		if c.Amount == nil || !c.Amount.IsPositive() {
			return "a positive amount is required for custom mode"
		}
	default:
		return "mode must be one of: full, partial, custom"
	}
	return ""
}
