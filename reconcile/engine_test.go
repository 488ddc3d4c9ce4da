package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campdesk/backoffice/models"
	"github.com/campdesk/backoffice/reconcile"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMatchFullPayment(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00001", "100")
	reg := store.addRegistration(inv, "100")
	tx := store.addTransaction("100", "payment INV-260715-00001", "INV-260715-00001")

	engine := reconcile.New(store, nil, nil)
	res, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, inv.ID, res.InvoiceID)
	assert.Equal(t, models.TxMatched, res.Status)
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)
	assert.NotNil(t, store.invoices[inv.ID].PaidAt)
	assert.True(t, store.invoices[inv.ID].TotalPayments.Equal(dec("100")))
	assert.Equal(t, models.PaymentPaid, store.registrations[0].PaymentStatus)
	assert.Empty(t, store.creditNotes)
	_ = reg
}

func TestMatchPartialPayment(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00002", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("60", "INV-260715-00002", "INV-260715-00002")

	engine := reconcile.New(store, nil, nil)
	res, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TxPartiallyMatched, res.Status)
	assert.Equal(t, models.InvoicePending, store.invoices[inv.ID].Status)
	assert.True(t, store.invoices[inv.ID].TotalPayments.Equal(dec("60")),
		"total_payments must equal the sum of matched transaction amounts")
	assert.Equal(t, models.PaymentPending, store.registrations[0].PaymentStatus)
}

func TestMatchOverpayment(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00003", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("130", "INV-260715-00003", "INV-260715-00003")

	engine := reconcile.New(store, nil, nil)
	res, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TxOverpaid, res.Status)
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)
	assert.True(t, store.invoices[inv.ID].TotalPayments.Equal(dec("130")))

	require.Len(t, store.creditNotes, 1)
	note := store.creditNotes[0]
	assert.True(t, note.Amount.Equal(dec("30")))
	assert.Equal(t, models.CreditNoteOverpayment, note.Type)
	require.NotNil(t, note.SourceTransactionID)
	assert.Equal(t, tx.ID, *note.SourceTransactionID)
	assert.Equal(t, store.registrations[0].ID, note.RegistrationID)

	for _, st := range store.transactions {
		if st.ID == tx.ID {
			assert.Equal(t, models.TxOverpaid, st.Status)
		}
	}
}

func TestOverpaymentCreditNeverCancels(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00020", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("250", "INV-260715-00020", "INV-260715-00020")

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	// the overpayment credit alone exceeds the invoice amount, but only
	// cancellation credits count towards cancellation
	require.Len(t, store.creditNotes, 1)
	assert.True(t, store.creditNotes[0].Amount.Equal(dec("150")))
	assert.Equal(t, models.CreditNoteOverpayment, store.creditNotes[0].Type)
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)

	require.NoError(t, engine.Reconcile(context.Background(), inv.ID))
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00004", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("130", "INV-260715-00004", "INV-260715-00004")

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	snapshotStatus := store.invoices[inv.ID].Status
	snapshotTotal := store.invoices[inv.ID].TotalPayments
	snapshotRegStatus := store.registrations[0].PaymentStatus

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.Reconcile(context.Background(), inv.ID))
		assert.Equal(t, snapshotStatus, store.invoices[inv.ID].Status)
		assert.True(t, store.invoices[inv.ID].TotalPayments.Equal(snapshotTotal))
		assert.Equal(t, snapshotRegStatus, store.registrations[0].PaymentStatus)
		assert.Len(t, store.creditNotes, 1, "repeat reconciliation must not duplicate credit notes")
	}
}

func TestMatchingPrecedence(t *testing.T) {
	store := newFakeStore()
	invoiceA := store.addInvoice("INV-260715-00005", "100")
	invoiceB := store.addInvoice("INV-260820-00009", "100")
	store.addRegistration(invoiceA, "100")
	store.addRegistration(invoiceB, "100")

	// communication equals B's invoice number, extracted number points at A
	tx := store.addTransaction("100", invoiceB.InvoiceNumber, invoiceA.InvoiceNumber)

	engine := reconcile.New(store, nil, nil)
	res, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, invoiceA.ID, res.InvoiceID, "extracted-number lookup wins over raw communication")
}

func TestMatchNoMatch(t *testing.T) {
	store := newFakeStore()
	tx := store.addTransaction("50", "no reference here", "")

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Match(context.Background(), tx.ID)
	require.ErrorIs(t, err, reconcile.ErrNoMatch)
	assert.Equal(t, models.TxUnmatched, store.transactions[0].Status,
		"unmatched transaction stays unmatched for manual resolution")
}

func TestIgnoreTransaction(t *testing.T) {
	store := newFakeStore()
	tx := store.addTransaction("12.50", "monthly account fee", "")

	engine := reconcile.New(store, nil, nil)
	ignored, err := engine.Ignore(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxIgnored, ignored.Status)
	assert.Equal(t, models.TxIgnored, store.transactions[0].Status)

	// ignored movements drop out of the matching backlog
	backlog, err := store.UnmatchedTransactions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestIgnoreMatchedTransactionRejected(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00021", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("100", inv.InvoiceNumber, inv.InvoiceNumber)

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	_, err = engine.Ignore(context.Background(), tx.ID)
	var verr *reconcile.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.TxMatched, store.transactions[0].Status)
}

func TestTransactionStatusMonotonic(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00006", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("130", "INV-260715-00006", "INV-260715-00006")

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	// repeat matching and reconciliation must never reset a status
	_, err = engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)
	require.NoError(t, engine.Reconcile(context.Background(), inv.ID))

	for _, status := range store.statusTransitions {
		assert.NotEqual(t, models.TxUnmatched, status)
	}
	assert.Equal(t, models.TxOverpaid, store.transactions[0].Status)
}

func TestRecursionGuard(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00007", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("130", "INV-260715-00007", "INV-260715-00007")

	engine := reconcile.New(store, nil, nil)

	// mimic the trigger cascade: registration and credit-note writes call
	// straight back into reconciliation for the same invoice
	store.onSetRegistration = func(ctx context.Context) {
		require.NoError(t, engine.Reconcile(ctx, inv.ID))
	}
	store.onInsertCreditNote = func(ctx context.Context) {
		require.NoError(t, engine.Reconcile(ctx, inv.ID))
	}

	_, err := engine.Match(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, store.settlementCalls,
		"re-entrant reconciliation must be a no-op, not a second run")
	assert.Len(t, store.creditNotes, 1)
}

func TestGuardReleasedAfterPanic(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00008", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("100", "INV-260715-00008", "INV-260715-00008")

	engine := reconcile.New(store, nil, nil)

	store.onSetRegistration = func(context.Context) { panic("boom") }
	assert.Panics(t, func() { _, _ = engine.Match(context.Background(), tx.ID) })

	store.onSetRegistration = nil
	require.NoError(t, engine.Reconcile(context.Background(), inv.ID))
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)
}

func TestMarkPaidIdempotent(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00010", "100")
	store.addRegistration(inv, "100")

	engine := reconcile.New(store, nil, nil)
	require.NoError(t, engine.MarkPaid(context.Background(), inv.ID, nil))
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)
	assert.Equal(t, models.PaymentPaid, store.registrations[0].PaymentStatus)

	calls := store.settlementCalls
	require.NoError(t, engine.MarkPaid(context.Background(), inv.ID, nil))
	assert.Equal(t, calls, store.settlementCalls, "marking a paid invoice paid again mutates nothing")
}

func TestMarkPaidForceMatchesPartialTransaction(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00009", "100")
	store.addRegistration(inv, "100")
	tx := store.addTransaction("60", "wrong reference", "")

	engine := reconcile.New(store, nil, nil)
	require.NoError(t, engine.MarkPaid(context.Background(), inv.ID, &tx.ID))

	assert.Equal(t, models.TxPartiallyMatched, store.transactions[0].Status)
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status, "the override settles despite the shortfall")
	assert.True(t, store.invoices[inv.ID].TotalPayments.Equal(dec("60")))
	assert.Equal(t, models.PaymentPaid, store.registrations[0].PaymentStatus)
}

func TestCancelFullMode(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00011", "90")
	regA := store.addRegistration(inv, "30")
	regB := store.addRegistration(inv, "60")

	engine := reconcile.New(store, nil, nil)
	res, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:           inv.ID,
		Mode:                models.RefundFull,
		CancelRegistrations: true,
		AdminNotes:          "camp week cancelled",
	})
	require.NoError(t, err)

	require.Len(t, res.CreditNotes, 2)
	sum := res.CreditNotes[0].Amount.Add(res.CreditNotes[1].Amount)
	assert.True(t, sum.Equal(dec("90")))

	// the invoice status comes from the reconciler's credit-note rule, not
	// from a workflow shortcut
	assert.Equal(t, models.InvoiceCancelled, store.invoices[inv.ID].Status)
	assert.Equal(t, models.InvoiceCancelled, res.Invoice.Status)

	for _, reg := range store.registrations {
		assert.Equal(t, models.PaymentCancelled, reg.PaymentStatus)
		assert.Equal(t, models.CancellationFullRefund, reg.CancellationStatus)
	}
	assert.Equal(t, 4, store.sessions[regA.SessionID])
	assert.Equal(t, 4, store.sessions[regB.SessionID])

	// every request links its credit note
	for _, req := range store.requests {
		assert.NotNil(t, req.CreditNoteID)
	}
}

func TestCancelRefundOnlyKeepsRegistrations(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00012", "90")
	store.addRegistration(inv, "30")
	store.addRegistration(inv, "60")

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:           inv.ID,
		Mode:                models.RefundFull,
		CancelRegistrations: false,
	})
	require.NoError(t, err)

	// credits fully cover the invoice, but a refund-only decision never
	// silently cancels the registrations; they are stamped refunded instead
	assert.Equal(t, models.InvoiceCancelled, store.invoices[inv.ID].Status)
	for _, reg := range store.registrations {
		assert.Equal(t, models.PaymentRefunded, reg.PaymentStatus)
		assert.Equal(t, models.CancellationNone, reg.CancellationStatus)
	}
}

func TestCancelRepeatRefundOnlyIssuesNothing(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00018", "90")
	store.addRegistration(inv, "30")
	store.addRegistration(inv, "60")

	engine := reconcile.New(store, nil, nil)
	input := models.CreditNoteInput{
		InvoiceID:           inv.ID,
		Mode:                models.RefundFull,
		CancelRegistrations: false,
	}
	first, err := engine.Cancel(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, first.CreditNotes, 2)

	// the refunded registrations are skipped, so a second run credits nothing
	second, err := engine.Cancel(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, second.CreditNotes)
	for _, r := range second.Registrations {
		assert.True(t, r.Skipped)
	}

	credited, err := store.SumCancellationCredits(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, credited.Equal(dec("90")), "aggregate credits %s", credited)
}

func TestCancelCreditCapRejected(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00019", "90")
	regA := store.addRegistration(inv, "30")
	regB := store.addRegistration(inv, "60")

	engine := reconcile.New(store, nil, nil)

	// one custom request above the invoice total
	amount := dec("120")
	_, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:       inv.ID,
		Mode:            models.RefundCustom,
		RegistrationIDs: []uuid.UUID{regA.ID, regB.ID},
		Amount:          &amount,
	})
	var verr *reconcile.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, store.creditNotes)

	// a request that only exceeds the cap together with earlier credits
	_, err = engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:       inv.ID,
		Mode:            models.RefundPartial,
		RegistrationIDs: []uuid.UUID{regA.ID},
	})
	require.NoError(t, err)
	amount = dec("70")
	_, err = engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:       inv.ID,
		Mode:            models.RefundCustom,
		RegistrationIDs: []uuid.UUID{regB.ID},
		Amount:          &amount,
	})
	require.ErrorAs(t, err, &verr)

	credited, err := store.SumCancellationCredits(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, credited.Equal(dec("30")), "aggregate credits %s", credited)
}

func TestCancelCustomProportionalSplit(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00013", "90")
	regA := store.addRegistration(inv, "30")
	regB := store.addRegistration(inv, "60")

	amount := dec("90")
	engine := reconcile.New(store, nil, nil)
	res, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:           inv.ID,
		Mode:                models.RefundCustom,
		RegistrationIDs:     []uuid.UUID{regA.ID, regB.ID},
		Amount:              &amount,
		CancelRegistrations: true,
	})
	require.NoError(t, err)

	require.Len(t, res.CreditNotes, 2)
	assert.True(t, res.CreditNotes[0].Amount.Equal(dec("30")), "got %s", res.CreditNotes[0].Amount)
	assert.True(t, res.CreditNotes[1].Amount.Equal(dec("60")), "got %s", res.CreditNotes[1].Amount)
	total := res.CreditNotes[0].Amount.Add(res.CreditNotes[1].Amount)
	assert.True(t, total.Equal(amount), "split must sum back exactly")
}

func TestCancelSkipsAlreadyCancelled(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00014", "90")
	regA := store.addRegistration(inv, "30")
	regB := store.addRegistration(inv, "60")
	store.registrations[0].PaymentStatus = models.PaymentCancelled
	store.registrations[0].CancellationStatus = models.CancellationNoRefund

	engine := reconcile.New(store, nil, nil)
	res, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:       inv.ID,
		Mode:            models.RefundPartial,
		RegistrationIDs: []uuid.UUID{regA.ID, regB.ID},
	})
	require.NoError(t, err)

	assert.Len(t, res.CreditNotes, 1, "cancelled registration is skipped, not an error")
	var skipped int
	for _, r := range res.Registrations {
		if r.Skipped {
			skipped++
			assert.Equal(t, regA.ID, r.RegistrationID)
		}
	}
	assert.Equal(t, 1, skipped)
}

func TestCancelRejectsForeignRegistration(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00015", "90")
	other := store.addInvoice("INV-260715-00016", "50")
	store.addRegistration(inv, "90")
	foreign := store.addRegistration(other, "50")

	engine := reconcile.New(store, nil, nil)
	_, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID:       inv.ID,
		Mode:            models.RefundPartial,
		RegistrationIDs: []uuid.UUID{foreign.ID},
	})
	var verr *reconcile.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, store.creditNotes, "validation failures reject before any mutation")
}

type failingSender struct{}

func (failingSender) SendCreditNote(context.Context, models.CreditNote) error {
	return errors.New("smtp down")
}

func TestCancelSenderFailureIsSoft(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00017", "50")
	store.addRegistration(inv, "50")

	engine := reconcile.New(store, failingSender{}, nil)
	res, err := engine.Cancel(context.Background(), models.CreditNoteInput{
		InvoiceID: inv.ID,
		Mode:      models.RefundFull,
	})
	require.NoError(t, err, "dispatch failure never rolls back the credit note")
	assert.True(t, res.SideEffectsFailed)
	require.Len(t, store.creditNotes, 1)
	assert.Equal(t, models.CreditNoteIssued, store.creditNotes[0].Status)
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func TestImportAndDuplicateRejection(t *testing.T) {
	store := newFakeStore()
	inv := store.addInvoice("INV-260715-00042", "1250")
	store.addRegistration(inv, "1250")

	csv := []byte("Date;Amount;Currency;Communication;Counterparty;Account\n" +
		"15/07/2026;1.250,00;EUR;payment INV-260715-00042;DUPONT MARIE;BE123\n" +
		"16/07/2026;40,00;EUR;no reference;JANSSENS PIET;BE987\n")
	fetcher := mapFetcher{"uploads/july.csv": csv}

	engine := reconcile.New(store, nil, fetcher)
	summary, err := engine.Import(context.Background(), models.ImportInput{FilePath: "uploads/july.csv"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TransactionsInserted)
	assert.Equal(t, 1, summary.MatchedCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, models.InvoicePaid, store.invoices[inv.ID].Status)

	before := len(store.transactions)
	_, err = engine.Import(context.Background(), models.ImportInput{FilePath: "uploads/july.csv"})
	require.ErrorIs(t, err, reconcile.ErrDuplicateImport)
	assert.Equal(t, before, len(store.transactions), "duplicate import inserts nothing")
}

func TestImportDownloadFailed(t *testing.T) {
	store := newFakeStore()
	engine := reconcile.New(store, nil, mapFetcher{})
	_, err := engine.Import(context.Background(), models.ImportInput{FilePath: "uploads/missing.csv"})
	require.ErrorIs(t, err, reconcile.ErrDownloadFailed)
}
