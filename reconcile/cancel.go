package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campdesk/backoffice/models"
)

// RegistrationResult reports the outcome of the workflow for one selected
// registration.
type RegistrationResult struct {
	RegistrationID uuid.UUID       `json:"registration_id"`
	Skipped        bool            `json:"skipped"`
	Reason         string          `json:"reason,omitempty"`
	CreditNoteID   *uuid.UUID      `json:"credit_note_id,omitempty"`
	CreditAmount   decimal.Decimal `json:"credit_amount"`
}

// CancelResult is the admin-facing outcome of a cancellation/refund run.
type CancelResult struct {
	Invoice           models.Invoice       `json:"invoice"`
	CreditNotes       []models.CreditNote  `json:"credit_notes"`
	Registrations     []RegistrationResult `json:"registrations"`
	SideEffectsFailed bool                 `json:"side_effects_failed"`
}

// Cancel runs the admin cancellation/refund workflow: per selected
// registration it records an approved cancellation request and issues a
// credit note, optionally cancelling the registration itself. The invoice
// status is never written here; a final Reconcile call derives it from the
// credit notes, so there is exactly one authority for that rule.
func (e *Engine) Cancel(ctx context.Context, input models.CreditNoteInput) (*CancelResult, error) {
	invoice, err := e.store.InvoiceByID(ctx, input.InvoiceID)
	if err != nil {
		return nil, ErrInvoiceNotFound
	}
	regs, err := e.store.RegistrationsByInvoice(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}

	selected, err := selectRegistrations(input, regs)
	if err != nil {
		return nil, err
	}

	result := &CancelResult{Invoice: invoice}
	var eligible []models.Registration
	for _, reg := range selected {
		if reg.Cancelled() {
			e.log.Info("registration already cancelled or refunded, skipped",
				"registration_id", reg.ID, "invoice_number", invoice.InvoiceNumber)
			result.Registrations = append(result.Registrations, RegistrationResult{
				RegistrationID: reg.ID,
				Skipped:        true,
				Reason:         "already cancelled or refunded",
				CreditAmount:   decimal.Zero,
			})
			continue
		}
		eligible = append(eligible, reg)
	}

	amounts, err := creditAmounts(input, eligible)
	if err != nil {
		return nil, err
	}
	if err := e.checkCreditCap(ctx, invoice, amounts); err != nil {
		return nil, err
	}

	refund := refundTypeFor(input.Mode)
	for i, reg := range eligible {
		note, err := e.cancelOne(ctx, invoice, reg, amounts[i], refund, input)
		if err != nil {
			return nil, err
		}
		if note == nil {
			// nothing to refund, the cancellation itself still happened
			result.Registrations = append(result.Registrations, RegistrationResult{
				RegistrationID: reg.ID,
				CreditAmount:   decimal.Zero,
			})
			continue
		}
		result.CreditNotes = append(result.CreditNotes, *note)
		result.Registrations = append(result.Registrations, RegistrationResult{
			RegistrationID: reg.ID,
			CreditNoteID:   &note.ID,
			CreditAmount:   note.Amount,
		})
		if !e.dispatch(ctx, *note) {
			result.SideEffectsFailed = true
		}
	}

	if err := e.Reconcile(ctx, invoice.ID); err != nil {
		return nil, err
	}
	settled, err := e.store.InvoiceByID(ctx, invoice.ID)
	if err == nil {
		result.Invoice = settled
	}
	return result, nil
}

// checkCreditCap rejects the run when the planned credit notes, added to
// the ones already issued against the invoice, would exceed the invoice's
// original amount. Overpayment credits refund money above that amount and
// are not counted here.
func (e *Engine) checkCreditCap(ctx context.Context, invoice models.Invoice, amounts []decimal.Decimal) error {
	planned := decimal.Zero
	for _, amount := range amounts {
		if amount.IsPositive() {
			planned = planned.Add(amount)
		}
	}
	if !planned.IsPositive() {
		return nil
	}
	issued, err := e.store.SumCancellationCredits(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if total := issued.Add(planned); total.GreaterThan(invoice.Amount) {
		return validationf("credit notes for invoice " + invoice.InvoiceNumber +
			" would total " + total.String() + " against an invoice amount of " + invoice.Amount.String())
	}
	return nil
}

// cancelOne records the approved cancellation request and, for a positive
// amount, issues the linked credit note. Returns a nil note when there is
// nothing to refund.
func (e *Engine) cancelOne(ctx context.Context, invoice models.Invoice, reg models.Registration, amount decimal.Decimal, refund models.RefundType, input models.CreditNoteInput) (*models.CreditNote, error) {
	if !amount.IsPositive() {
		refund = models.RefundTypeNone
	}
	request := models.CancellationRequest{
		ID:              uuid.New(),
		RegistrationID:  reg.ID,
		RefundType:      refund,
		CancelRequested: input.CancelRegistrations,
		AdminNotes:      input.AdminNotes,
		Status:          "approved",
	}
	if err := e.store.InsertCancellationRequest(ctx, &request); err != nil {
		return nil, err
	}

	if !amount.IsPositive() {
		if input.CancelRegistrations {
			if err := e.store.SetRegistrationCancellation(ctx, reg.ID, models.PaymentCancelled, models.CancellationNoRefund); err != nil {
				return nil, err
			}
			if err := e.store.DecrementSessionCount(ctx, reg.SessionID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	number, err := e.store.NextCreditNoteNumber(ctx, time.Now().UTC().Year())
	if err != nil {
		return nil, err
	}
	note := models.CreditNote{
		ID:                    uuid.New(),
		CreditNoteNumber:      number,
		Amount:                amount,
		Status:                models.CreditNoteIssued,
		Type:                  models.CreditNoteCancellation,
		UserID:                reg.UserID,
		RegistrationID:        reg.ID,
		InvoiceID:             &invoice.ID,
		CancellationRequestID: &request.ID,
	}
	if err := e.store.InsertCreditNote(ctx, &note); err != nil {
		return nil, err
	}
	if err := e.store.LinkCancellationCreditNote(ctx, request.ID, note.ID); err != nil {
		return nil, err
	}

	if input.CancelRegistrations {
		if err := e.store.SetRegistrationCancellation(ctx, reg.ID, models.PaymentCancelled, cancellationStatusFor(refund)); err != nil {
			return nil, err
		}
		if err := e.store.DecrementSessionCount(ctx, reg.SessionID); err != nil {
			return nil, err
		}
	} else {
		// the registration stays active, but its money has been credited;
		// refunded also takes it out of any later workflow run
		if err := e.store.SetRegistrationPaymentStatus(ctx, reg.ID, models.PaymentRefunded); err != nil {
			return nil, err
		}
	}
	return &note, nil
}

// selectRegistrations resolves the request's registration selection against
// the invoice. Full mode takes every registration; the other modes take the
// caller's ids, all of which must belong to the invoice.
func selectRegistrations(input models.CreditNoteInput, regs []models.Registration) ([]models.Registration, error) {
	if input.Mode == models.RefundFull {
		return regs, nil
	}
	byID := make(map[uuid.UUID]models.Registration, len(regs))
	for _, reg := range regs {
		byID[reg.ID] = reg
	}
	selected := make([]models.Registration, 0, len(input.RegistrationIDs))
	for _, id := range input.RegistrationIDs {
		reg, ok := byID[id]
		if !ok {
			return nil, validationf("registration " + id.String() + " does not belong to the invoice")
		}
		selected = append(selected, reg)
	}
	return selected, nil
}

// creditAmounts computes the per-registration credit amounts. Full and
// partial modes credit each registration's paid price. Custom mode splits
// the requested amount proportionally to the paid prices, the last
// registration absorbing the rounding remainder so the split sums back
// exactly.
func creditAmounts(input models.CreditNoteInput, regs []models.Registration) ([]decimal.Decimal, error) {
	amounts := make([]decimal.Decimal, len(regs))
	if input.Mode != models.RefundCustom {
		for i, reg := range regs {
			amounts[i] = reg.Price
		}
		return amounts, nil
	}

	if len(regs) == 0 {
		return amounts, nil
	}
	if len(regs) == 1 {
		amounts[0] = *input.Amount
		return amounts, nil
	}

	total := decimal.Zero
	for _, reg := range regs {
		total = total.Add(reg.Price)
	}
	if !total.IsPositive() {
		return nil, validationf("selected registrations have no paid amount to split against")
	}

	remaining := *input.Amount
	for i, reg := range regs {
		if i == len(regs)-1 {
			amounts[i] = remaining
			break
		}
		share := input.Amount.Mul(reg.Price).Div(total).Round(2)
		amounts[i] = share
		remaining = remaining.Sub(share)
	}
	return amounts, nil
}

func refundTypeFor(mode models.RefundMode) models.RefundType {
	switch mode {
	case models.RefundFull:
		return models.RefundTypeFull
	default:
		return models.RefundTypePartial
	}
}
