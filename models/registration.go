package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// CancellationStatus records how (and whether) a registration was cancelled.
type CancellationStatus string

const (
	CancellationNone          CancellationStatus = "none"
	CancellationFullRefund    CancellationStatus = "cancelled_full_refund"
	CancellationPartialRefund CancellationStatus = "cancelled_partial_refund"
	CancellationNoRefund      CancellationStatus = "cancelled_no_refund"
)

// Registration is one child's enrollment in one session occurrence.
// It links to its invoice by identifier, never by invoice number.
type Registration struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	KidName            string             `json:"kid_name"`
	SessionID          uuid.UUID          `json:"session_id"`
	Price              decimal.Decimal    `json:"price"`
	PaymentStatus      PaymentStatus      `json:"payment_status"`
	CancellationStatus CancellationStatus `json:"cancellation_status"`
	InvoiceID          *uuid.UUID         `json:"invoice_id"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	// Computed fields
	SessionName *string `json:"session_name,omitempty"`
}

// Cancelled reports whether the registration is already in a cancelled state.
func (r *Registration) Cancelled() bool {
	return r.PaymentStatus == PaymentCancelled ||
		r.PaymentStatus == PaymentRefunded ||
		r.CancellationStatus != CancellationNone
}

// RegistrationInput is one registration line of a checkout.
type RegistrationInput struct {
	KidName   string          `json:"kid_name"`
	SessionID uuid.UUID       `json:"session_id"`
	Price     decimal.Decimal `json:"price"`
}

func (r *RegistrationInput) Validate() string {
	if r.KidName == "" {
		return "kid_name is required"
	}
	if r.SessionID == uuid.Nil {
		return "session_id is required"
	}
	if r.Price.IsNegative() {
		return "price must be non-negative"
	}
	return ""
}
