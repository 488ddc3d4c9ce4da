package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice represents a billing record owed by a parent for one or more
// registrations, settled by bank transfer against a structured communication.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       *time.Time      `json:"due_date"`
	Communication string          `json:"communication"`
	TotalPayments decimal.Decimal `json:"total_payments"`
	PaidAt        *time.Time      `json:"paid_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	// Computed fields
	RegistrationIDs []uuid.UUID `json:"registration_ids,omitempty"`
	TransactionIDs  []uuid.UUID `json:"transaction_ids,omitempty"`
}

// InvoiceInput creates an invoice plus its registrations at checkout.
type InvoiceInput struct {
	UserID        uuid.UUID           `json:"user_id"`
	DueDate       *time.Time          `json:"due_date"`
	Registrations []RegistrationInput `json:"registrations"`
}

func (i *InvoiceInput) Validate() string {
	if i.UserID == uuid.Nil {
		return "user_id is required"
	}
	if len(i.Registrations) == 0 {
		return "at least one registration is required"
	}
	for idx := range i.Registrations {
		if msg := i.Registrations[idx].Validate(); msg != "" {
			return msg
		}
	}
	return ""
}

// MarkPaidInput is the manual payment override request.
type MarkPaidInput struct {
	TransactionID *uuid.UUID `json:"transaction_id"`
}
