package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campdesk/backoffice/models"
)

// handleOverpayment issues a credit note for the part of the received
// payments that exceeds the invoice amount. The excess is computed net of
// previously issued overpayment credits, which is what makes repeat
// reconciliation emit nothing new. The note is attached to the latest
// contributing transaction and the invoice's first registration.
func (e *Engine) handleOverpayment(ctx context.Context, invoice models.Invoice, totalPayments decimal.Decimal) error {
	alreadyCredited, err := e.store.SumOverpaymentCredits(ctx, invoice.ID)
	if err != nil {
		return err
	}
	excess := totalPayments.Sub(invoice.Amount).Sub(alreadyCredited)
	if !excess.IsPositive() {
		return nil
	}

	funding, err := e.store.LatestContributingTransaction(ctx, invoice.ID)
	if err != nil {
		return err
	}
	regs, err := e.store.RegistrationsByInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		e.log.Warn("overpaid invoice has no registrations, credit note skipped",
			"invoice_number", invoice.InvoiceNumber, "excess", excess)
		return nil
	}

	number, err := e.store.NextCreditNoteNumber(ctx, time.Now().UTC().Year())
	if err != nil {
		return err
	}
	note := models.CreditNote{
		ID:                  uuid.New(),
		CreditNoteNumber:    number,
		Amount:              excess,
		Status:              models.CreditNoteIssued,
		Type:                models.CreditNoteOverpayment,
		UserID:              invoice.UserID,
		RegistrationID:      regs[0].ID,
		InvoiceID:           &invoice.ID,
		SourceTransactionID: &funding.ID,
	}
	if err := e.store.InsertCreditNote(ctx, &note); err != nil {
		return err
	}
	e.log.Info("overpayment credit note issued",
		"invoice_number", invoice.InvoiceNumber,
		"credit_note_number", number, "excess", excess)

	if funding.Status != models.TxOverpaid {
		if err := e.store.MarkTransactionOverpaid(ctx, funding.ID); err != nil {
			return err
		}
	}

	e.dispatch(ctx, note)
	return nil
}

// dispatch sends the credit note document. Failure is a soft warning only.
func (e *Engine) dispatch(ctx context.Context, note models.CreditNote) bool {
	if err := e.sender.SendCreditNote(ctx, note); err != nil {
		e.log.Warn("credit note dispatch failed",
			"credit_note_number", note.CreditNoteNumber, "error", err)
		return false
	}
	if err := e.store.MarkCreditNoteSent(ctx, note.ID); err != nil {
		e.log.Warn("credit note status update failed",
			"credit_note_number", note.CreditNoteNumber, "error", err)
	}
	return true
}
