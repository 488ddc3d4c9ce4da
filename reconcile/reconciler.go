package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/campdesk/backoffice/models"
)

// Reconcile recomputes an invoice's payment totals and derives its status,
// cascading to its registrations. It is idempotent: with no intervening data
// change, repeat calls settle on identical persisted state and create no
// additional credit notes. Nested re-entrant calls for the same invoice
// (credit-note emission and registration cascades call back in) are no-ops.
func (e *Engine) Reconcile(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := guarded(ctx, "reconcile:"+invoiceID.String(), func(ctx context.Context) error {
		return e.reconcile(ctx, invoiceID)
	})
	return err
}

func (e *Engine) reconcile(ctx context.Context, invoiceID uuid.UUID) error {
	invoice, err := e.store.InvoiceByID(ctx, invoiceID)
	if err != nil {
		return ErrInvoiceNotFound
	}

	totalPayments, err := e.store.SumMatchedPayments(ctx, invoiceID)
	if err != nil {
		return err
	}
	totalCredits, err := e.store.SumCancellationCredits(ctx, invoiceID)
	if err != nil {
		return err
	}

	// Status precedence: credit-note coverage cancels, full payment pays,
	// anything else stays pending.
	status := models.InvoicePending
	paidAt := invoice.PaidAt
	switch {
	case totalCredits.GreaterThanOrEqual(invoice.Amount):
		status = models.InvoiceCancelled
	case totalPayments.GreaterThanOrEqual(invoice.Amount):
		status = models.InvoicePaid
		if paidAt == nil {
			now := time.Now().UTC()
			paidAt = &now
		}
	}

	if err := e.store.UpdateInvoiceSettlement(ctx, invoiceID, status, totalPayments, paidAt); err != nil {
		return err
	}
	if invoice.Status != status {
		e.log.Info("invoice status changed",
			"invoice_number", invoice.InvoiceNumber,
			"from", invoice.Status, "to", status,
			"total_payments", totalPayments, "total_credits", totalCredits)
	}

	switch status {
	case models.InvoicePaid:
		if err := e.cascadePaid(ctx, invoiceID); err != nil {
			return err
		}
	case models.InvoiceCancelled:
		if err := e.cascadeCancelled(ctx, invoiceID); err != nil {
			return err
		}
	}

	if totalPayments.GreaterThan(invoice.Amount) {
		if err := e.handleOverpayment(ctx, invoice, totalPayments); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) cascadePaid(ctx context.Context, invoiceID uuid.UUID) error {
	regs, err := e.store.RegistrationsByInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if reg.PaymentStatus != models.PaymentPending {
			continue
		}
		if err := e.store.SetRegistrationPaymentStatus(ctx, reg.ID, models.PaymentPaid); err != nil {
			return err
		}
	}
	return nil
}

// cascadeCancelled stamps cancellation status only on registrations whose
// cancellation was actually requested. Invoice cancellation by credit-note
// coverage never silently cancels the others.
func (e *Engine) cascadeCancelled(ctx context.Context, invoiceID uuid.UUID) error {
	regs, err := e.store.RegistrationsByInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if reg.Cancelled() {
			continue
		}
		req, err := e.store.ApprovedCancellation(ctx, reg.ID)
		if err != nil {
			return err
		}
		if req == nil || !req.CancelRequested {
			continue
		}
		if err := e.store.SetRegistrationCancellation(ctx, reg.ID, models.PaymentCancelled, cancellationStatusFor(req.RefundType)); err != nil {
			return err
		}
	}
	return nil
}

func cancellationStatusFor(refund models.RefundType) models.CancellationStatus {
	switch refund {
	case models.RefundTypeFull:
		return models.CancellationFullRefund
	case models.RefundTypePartial:
		return models.CancellationPartialRefund
	default:
		return models.CancellationNoRefund
	}
}

// MarkPaid is the manual override. It forces a transaction link when one is
// supplied, then reconciles; calling it on an already paid invoice is a
// no-op that reports success.
func (e *Engine) MarkPaid(ctx context.Context, invoiceID uuid.UUID, transactionID *uuid.UUID) error {
	invoice, err := e.store.InvoiceByID(ctx, invoiceID)
	if err != nil {
		return ErrInvoiceNotFound
	}
	if invoice.Status == models.InvoicePaid {
		return nil
	}

	if transactionID != nil {
		if _, err := e.ForceMatch(ctx, *transactionID, invoiceID); err != nil {
			return err
		}
		settled, err := e.store.InvoiceByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if settled.Status == models.InvoicePaid {
			return nil
		}
		// the transaction did not cover the full amount, the override still
		// settles the invoice
	}

	totalPayments, err := e.store.SumMatchedPayments(ctx, invoiceID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := e.store.UpdateInvoiceSettlement(ctx, invoiceID, models.InvoicePaid, totalPayments, &now); err != nil {
		return err
	}
	e.log.Info("invoice manually marked paid", "invoice_number", invoice.InvoiceNumber)
	return e.cascadePaid(ctx, invoiceID)
}
