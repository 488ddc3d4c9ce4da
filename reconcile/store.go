package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campdesk/backoffice/models"
)

// Store is the ledger access the engine needs. The SQL implementation lives
// in the ledger package; tests substitute an in-memory fake. Each method is
// a single atomic mutation or read; the invoice settlement update is the
// serialization point for concurrent reconcilers of the same invoice.
type Store interface {
	InvoiceByID(ctx context.Context, id uuid.UUID) (models.Invoice, error)
	PendingInvoiceByNumber(ctx context.Context, number string) (models.Invoice, error)
	PendingInvoiceByCommunication(ctx context.Context, text string) (models.Invoice, error)
	UpdateInvoiceSettlement(ctx context.Context, id uuid.UUID, status models.InvoiceStatus, totalPayments decimal.Decimal, paidAt *time.Time) error

	TransactionByID(ctx context.Context, id uuid.UUID) (models.BankTransaction, error)
	UnmatchedTransactions(ctx context.Context, limit int) ([]models.BankTransaction, error)
	SetTransactionMatch(ctx context.Context, id, invoiceID uuid.UUID, status models.TransactionStatus) error
	MarkTransactionOverpaid(ctx context.Context, id uuid.UUID) error
	MarkTransactionIgnored(ctx context.Context, id uuid.UUID) error
	LatestContributingTransaction(ctx context.Context, invoiceID uuid.UUID) (models.BankTransaction, error)
	SumMatchedPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)

	RegistrationsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Registration, error)
	SetRegistrationPaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error
	SetRegistrationCancellation(ctx context.Context, id uuid.UUID, payment models.PaymentStatus, cancellation models.CancellationStatus) error
	DecrementSessionCount(ctx context.Context, sessionID uuid.UUID) error

	SumCancellationCredits(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	SumOverpaymentCredits(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	InsertCreditNote(ctx context.Context, note *models.CreditNote) error
	MarkCreditNoteSent(ctx context.Context, id uuid.UUID) error
	NextCreditNoteNumber(ctx context.Context, year int) (string, error)

	InsertCancellationRequest(ctx context.Context, req *models.CancellationRequest) error
	LinkCancellationCreditNote(ctx context.Context, requestID, creditNoteID uuid.UUID) error
	ApprovedCancellation(ctx context.Context, registrationID uuid.UUID) (*models.CancellationRequest, error)

	FilePathImported(ctx context.Context, path string) (bool, error)
	RecordImport(ctx context.Context, imp *models.StatementImport) error
	InsertTransaction(ctx context.Context, tx *models.BankTransaction) error
}
