package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campdesk/backoffice/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is full")
)

// CreateInvoice creates an invoice and its registrations in one transaction:
// number and communication are generated, each registration is linked to the
// invoice by id, and session seat counts are taken. A full session rolls the
// whole checkout back.
func (s *Store) CreateInvoice(ctx context.Context, input models.InvoiceInput) (models.Invoice, []models.Registration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Invoice{}, nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	seq, err := nextSeq(ctx, tx, "invoice", now.Year())
	if err != nil {
		return models.Invoice{}, nil, err
	}

	amount := decimal.Zero
	for i := range input.Registrations {
		amount = amount.Add(input.Registrations[i].Price)
	}

	inv := models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: invoiceNumber(now, seq),
		UserID:        input.UserID,
		Amount:        amount,
		Status:        models.InvoicePending,
		DueDate:       input.DueDate,
		Communication: Communication(now.Year(), seq),
		TotalPayments: decimal.Zero,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO invoices (id, invoice_number, user_id, amount, status, due_date, communication, total_payments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		inv.ID, inv.InvoiceNumber, inv.UserID, inv.Amount, inv.Status, inv.DueDate,
		inv.Communication, inv.TotalPayments).
		Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return models.Invoice{}, nil, err
	}

	regs := make([]models.Registration, 0, len(input.Registrations))
	for i := range input.Registrations {
		in := &input.Registrations[i]
		if err := takeSeat(ctx, tx, in.SessionID); err != nil {
			return models.Invoice{}, nil, fmt.Errorf("session %s: %w", in.SessionID, err)
		}
		reg := models.Registration{
			ID:                 uuid.New(),
			UserID:             input.UserID,
			KidName:            in.KidName,
			SessionID:          in.SessionID,
			Price:              in.Price,
			PaymentStatus:      models.PaymentPending,
			CancellationStatus: models.CancellationNone,
			InvoiceID:          &inv.ID,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO registrations (id, user_id, kid_name, session_id, price, payment_status, cancellation_status, invoice_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`,
			reg.ID, reg.UserID, reg.KidName, reg.SessionID, reg.Price,
			reg.PaymentStatus, reg.CancellationStatus, reg.InvoiceID).
			Scan(&reg.CreatedAt, &reg.UpdatedAt)
		if err != nil {
			return models.Invoice{}, nil, err
		}
		regs = append(regs, reg)
		inv.RegistrationIDs = append(inv.RegistrationIDs, reg.ID)
	}

	if err := tx.Commit(); err != nil {
		return models.Invoice{}, nil, err
	}
	return inv, regs, nil
}

func takeSeat(ctx context.Context, tx querier, sessionID uuid.UUID) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`UPDATE sessions SET registered_count = registered_count + 1, updated_at = now()
		WHERE id = $1 AND registered_count < capacity
		RETURNING registered_count`, sessionID).Scan(&count)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	// no row updated: either the session is unknown or at capacity
	var exists bool
	if checkErr := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); checkErr != nil {
		return checkErr
	}
	if !exists {
		return ErrSessionNotFound
	}
	return ErrSessionFull
}
