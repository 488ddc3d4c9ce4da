// Package ledger is the Postgres persistence layer for invoices,
// registrations, bank transactions and credit notes. It implements
// reconcile.Store; the invoice row update is where concurrent reconcilers of
// the same invoice serialize on the row lock.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/campdesk/backoffice/models"
	"github.com/campdesk/backoffice/reconcile"
)

// Store runs all ledger SQL. Each method is one atomic statement or one
// short transaction.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const invoiceColumns = `id, invoice_number, user_id, amount, status, due_date,
	communication, total_payments, paid_at, created_at, updated_at`

func scanInvoice(row *sql.Row) (models.Invoice, error) {
	var inv models.Invoice
	var dueDate, paidAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.UserID, &inv.Amount, &inv.Status,
		&dueDate, &inv.Communication, &inv.TotalPayments, &paidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return models.Invoice{}, err
	}
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	return inv, nil
}

func (s *Store) InvoiceByID(ctx context.Context, id uuid.UUID) (models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, reconcile.ErrInvoiceNotFound
	}
	return inv, err
}

func (s *Store) PendingInvoiceByNumber(ctx context.Context, number string) (models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1 AND status = 'pending'`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, reconcile.ErrInvoiceNotFound
	}
	return inv, err
}

func (s *Store) PendingInvoiceByCommunication(ctx context.Context, text string) (models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE status = 'pending' AND (communication = $1 OR invoice_number = $1)
		ORDER BY created_at LIMIT 1`, text))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, reconcile.ErrInvoiceNotFound
	}
	return inv, err
}

func (s *Store) UpdateInvoiceSettlement(ctx context.Context, id uuid.UUID, status models.InvoiceStatus, totalPayments decimal.Decimal, paidAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = $2, total_payments = $3, paid_at = $4, updated_at = now() WHERE id = $1`,
		id, status, totalPayments, paidAt)
	return err
}

const txColumns = `id, import_id, value_date, date_valid, amount, currency, communication,
	extracted_number, counterparty_name, counterparty_account, status, invoice_id, notes,
	created_at, updated_at`

func scanTransaction(scanner interface{ Scan(...any) error }) (models.BankTransaction, error) {
	var t models.BankTransaction
	var extracted, cptyName, cptyAccount, notes sql.NullString
	var invoiceID uuid.NullUUID
	err := scanner.Scan(&t.ID, &t.ImportID, &t.ValueDate, &t.DateValid, &t.Amount, &t.Currency,
		&t.Communication, &extracted, &cptyName, &cptyAccount, &t.Status, &invoiceID, &notes,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.BankTransaction{}, err
	}
	if extracted.Valid {
		t.ExtractedNumber = &extracted.String
	}
	if cptyName.Valid {
		t.CounterpartyName = &cptyName.String
	}
	if cptyAccount.Valid {
		t.CounterpartyAccount = &cptyAccount.String
	}
	if invoiceID.Valid {
		t.InvoiceID = &invoiceID.UUID
	}
	if notes.Valid && notes.String != "" {
		t.Notes = strings.Split(notes.String, "\n")
	}
	return t, nil
}

func (s *Store) TransactionByID(ctx context.Context, id uuid.UUID) (models.BankTransaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM bank_transactions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.BankTransaction{}, reconcile.ErrTransactionNotFound
	}
	return t, err
}

func (s *Store) UnmatchedTransactions(ctx context.Context, limit int) ([]models.BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM bank_transactions WHERE status = 'unmatched' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) SetTransactionMatch(ctx context.Context, id, invoiceID uuid.UUID, status models.TransactionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET invoice_id = $2, status = $3, updated_at = now() WHERE id = $1`,
		id, invoiceID, status)
	return err
}

func (s *Store) MarkTransactionOverpaid(ctx context.Context, id uuid.UUID) error {
	// idempotent, a transaction already marked overpaid is left alone
	_, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET status = 'overpaid', updated_at = now()
		WHERE id = $1 AND status <> 'overpaid'`, id)
	return err
}

func (s *Store) MarkTransactionIgnored(ctx context.Context, id uuid.UUID) error {
	// only an unmatched movement may leave the backlog this way
	_, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET status = 'ignored', updated_at = now()
		WHERE id = $1 AND status = 'unmatched'`, id)
	return err
}

func (s *Store) LatestContributingTransaction(ctx context.Context, invoiceID uuid.UUID) (models.BankTransaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM bank_transactions
		WHERE invoice_id = $1 AND status IN ('matched', 'partially_matched', 'overpaid')
		ORDER BY created_at DESC LIMIT 1`, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.BankTransaction{}, reconcile.ErrTransactionNotFound
	}
	return t, err
}

func (s *Store) SumMatchedPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM bank_transactions
		WHERE invoice_id = $1 AND status IN ('matched', 'partially_matched', 'overpaid')`, invoiceID).Scan(&sum)
	return sum, err
}

const registrationColumns = `id, user_id, kid_name, session_id, price, payment_status,
	cancellation_status, invoice_id, created_at, updated_at`

func scanRegistration(scanner interface{ Scan(...any) error }) (models.Registration, error) {
	var r models.Registration
	var invoiceID uuid.NullUUID
	err := scanner.Scan(&r.ID, &r.UserID, &r.KidName, &r.SessionID, &r.Price,
		&r.PaymentStatus, &r.CancellationStatus, &invoiceID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Registration{}, err
	}
	if invoiceID.Valid {
		r.InvoiceID = &invoiceID.UUID
	}
	return r, nil
}

func (s *Store) RegistrationsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

func (s *Store) SetRegistrationPaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET payment_status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (s *Store) SetRegistrationCancellation(ctx context.Context, id uuid.UUID, payment models.PaymentStatus, cancellation models.CancellationStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET payment_status = $2, cancellation_status = $3, updated_at = now() WHERE id = $1`,
		id, payment, cancellation)
	return err
}

func (s *Store) DecrementSessionCount(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET registered_count = GREATEST(registered_count - 1, 0), updated_at = now() WHERE id = $1`,
		sessionID)
	return err
}

func (s *Store) sumCredits(ctx context.Context, invoiceID uuid.UUID, typ models.CreditNoteType) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_notes WHERE invoice_id = $1 AND type = $2`,
		invoiceID, typ).Scan(&sum)
	return sum, err
}

func (s *Store) SumCancellationCredits(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return s.sumCredits(ctx, invoiceID, models.CreditNoteCancellation)
}

func (s *Store) SumOverpaymentCredits(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return s.sumCredits(ctx, invoiceID, models.CreditNoteOverpayment)
}

func (s *Store) InsertCreditNote(ctx context.Context, note *models.CreditNote) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO credit_notes (id, credit_note_number, amount, status, type, user_id,
			registration_id, invoice_id, cancellation_request_id, source_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		note.ID, note.CreditNoteNumber, note.Amount, note.Status, note.Type, note.UserID,
		note.RegistrationID, note.InvoiceID, note.CancellationRequestID, note.SourceTransactionID).
		Scan(&note.CreatedAt)
}

func (s *Store) MarkCreditNoteSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credit_notes SET status = 'sent' WHERE id = $1 AND status = 'issued'`, id)
	return err
}

func (s *Store) InsertCancellationRequest(ctx context.Context, req *models.CancellationRequest) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO cancellation_requests (id, registration_id, refund_type, cancel_requested, admin_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		req.ID, req.RegistrationID, req.RefundType, req.CancelRequested, req.AdminNotes, req.Status).
		Scan(&req.CreatedAt)
}

func (s *Store) LinkCancellationCreditNote(ctx context.Context, requestID, creditNoteID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cancellation_requests SET credit_note_id = $2 WHERE id = $1`, requestID, creditNoteID)
	return err
}

func (s *Store) ApprovedCancellation(ctx context.Context, registrationID uuid.UUID) (*models.CancellationRequest, error) {
	var req models.CancellationRequest
	var creditNoteID uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id, registration_id, refund_type, cancel_requested, admin_notes, credit_note_id, status, created_at
		FROM cancellation_requests
		WHERE registration_id = $1 AND status = 'approved'
		ORDER BY created_at DESC LIMIT 1`, registrationID).
		Scan(&req.ID, &req.RegistrationID, &req.RefundType, &req.CancelRequested,
			&req.AdminNotes, &creditNoteID, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if creditNoteID.Valid {
		req.CreditNoteID = &creditNoteID.UUID
	}
	return &req, nil
}

func (s *Store) FilePathImported(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM statement_imports WHERE file_path = $1)`, path).Scan(&exists)
	return exists, err
}

func (s *Store) RecordImport(ctx context.Context, imp *models.StatementImport) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO statement_imports (id, batch_id, file_path, format, transaction_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		imp.ID, imp.BatchID, imp.FilePath, imp.Format, imp.TransactionCount).Scan(&imp.CreatedAt)
	if isUniqueViolation(err) {
		return reconcile.ErrDuplicateImport
	}
	return err
}

func (s *Store) InsertTransaction(ctx context.Context, tx *models.BankTransaction) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO bank_transactions (id, import_id, value_date, date_valid, amount, currency,
			communication, extracted_number, counterparty_name, counterparty_account, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		tx.ID, tx.ImportID, tx.ValueDate, tx.DateValid, tx.Amount, tx.Currency,
		tx.Communication, tx.ExtractedNumber, tx.CounterpartyName, tx.CounterpartyAccount,
		tx.Status, strings.Join(tx.Notes, "\n")).
		Scan(&tx.CreatedAt, &tx.UpdatedAt)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
