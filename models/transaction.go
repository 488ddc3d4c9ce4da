package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the match state of an imported bank movement.
// Transitions only move forward: unmatched never comes back automatically.
type TransactionStatus string

const (
	TxUnmatched        TransactionStatus = "unmatched"
	TxMatched          TransactionStatus = "matched"
	TxPartiallyMatched TransactionStatus = "partially_matched"
	TxOverpaid         TransactionStatus = "overpaid"
	TxIgnored          TransactionStatus = "ignored"
)

// Matched reports whether the status counts towards an invoice's payments.
func (s TransactionStatus) Matched() bool {
	return s == TxMatched || s == TxPartiallyMatched || s == TxOverpaid
}

// BankTransaction is one imported, normalized bank statement line.
type BankTransaction struct {
	ID                  uuid.UUID         `json:"id"`
	ImportID            uuid.UUID         `json:"import_id"`
	ValueDate           time.Time         `json:"value_date"`
	DateValid           bool              `json:"date_valid"`
	Amount              decimal.Decimal   `json:"amount"`
	Currency            string            `json:"currency"`
	Communication       string            `json:"communication"`
	ExtractedNumber     *string           `json:"extracted_number"`
	CounterpartyName    *string           `json:"counterparty_name"`
	CounterpartyAccount *string           `json:"counterparty_account"`
	Status              TransactionStatus `json:"status"`
	InvoiceID           *uuid.UUID        `json:"invoice_id"`
	Notes               []string          `json:"notes,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// ManualMatchInput requests a manual or forced match for one transaction.
// When InvoiceID is nil the automatic matching rules apply.
type ManualMatchInput struct {
	InvoiceID *uuid.UUID `json:"invoice_id"`
}

// ImportInput requests ingestion of one bank statement file.
type ImportInput struct {
	FilePath string     `json:"file_path"`
	Format   string     `json:"format"` // fixed | delimited, detected from extension when empty
	BatchID  *uuid.UUID `json:"batch_id"`
}

func (i *ImportInput) Validate() string {
	if i.FilePath == "" {
		return "file_path is required"
	}
	switch i.Format {
	case "", "fixed", "delimited":
	default:
		return "format must be one of: fixed, delimited"
	}
	return ""
}
