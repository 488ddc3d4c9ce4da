package reconcile_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campdesk/backoffice/models"
	"github.com/campdesk/backoffice/reconcile"
)

// fakeStore implements reconcile.Store in memory. Hooks mimic the database
// trigger cascade of the original system: a registration or credit-note
// write can call back into the engine.
type fakeStore struct {
	invoices      map[uuid.UUID]*models.Invoice
	transactions  []*models.BankTransaction
	registrations []*models.Registration
	creditNotes   []*models.CreditNote
	requests      []*models.CancellationRequest
	sessions      map[uuid.UUID]int
	imports       map[string]*models.StatementImport
	seq           int
	clock         time.Time

	settlementCalls    int
	statusTransitions  []models.TransactionStatus
	onSetRegistration  func(ctx context.Context)
	onInsertCreditNote func(ctx context.Context)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invoices: map[uuid.UUID]*models.Invoice{},
		sessions: map[uuid.UUID]int{},
		imports:  map[string]*models.StatementImport{},
		clock:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeStore) addInvoice(number, amount string) *models.Invoice {
	inv := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: number,
		UserID:        uuid.New(),
		Amount:        decimal.RequireFromString(amount),
		Status:        models.InvoicePending,
		Communication: "+++" + number + "+++",
		TotalPayments: decimal.Zero,
		CreatedAt:     f.tick(),
	}
	f.invoices[inv.ID] = inv
	return inv
}

func (f *fakeStore) addRegistration(inv *models.Invoice, price string) *models.Registration {
	reg := &models.Registration{
		ID:                 uuid.New(),
		UserID:             inv.UserID,
		KidName:            "kid",
		SessionID:          uuid.New(),
		Price:              decimal.RequireFromString(price),
		PaymentStatus:      models.PaymentPending,
		CancellationStatus: models.CancellationNone,
		InvoiceID:          &inv.ID,
		CreatedAt:          f.tick(),
	}
	f.registrations = append(f.registrations, reg)
	f.sessions[reg.SessionID] = 5
	return reg
}

func (f *fakeStore) addTransaction(amount, communication string, extracted string) *models.BankTransaction {
	tx := &models.BankTransaction{
		ID:            uuid.New(),
		ImportID:      uuid.New(),
		ValueDate:     f.clock,
		DateValid:     true,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "EUR",
		Communication: communication,
		Status:        models.TxUnmatched,
		CreatedAt:     f.tick(),
	}
	if extracted != "" {
		tx.ExtractedNumber = &extracted
	}
	f.transactions = append(f.transactions, tx)
	return tx
}

// --- reconcile.Store ---

func (f *fakeStore) InvoiceByID(_ context.Context, id uuid.UUID) (models.Invoice, error) {
	if inv, ok := f.invoices[id]; ok {
		return *inv, nil
	}
	return models.Invoice{}, reconcile.ErrInvoiceNotFound
}

func (f *fakeStore) PendingInvoiceByNumber(_ context.Context, number string) (models.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.Status == models.InvoicePending && inv.InvoiceNumber == number {
			return *inv, nil
		}
	}
	return models.Invoice{}, reconcile.ErrInvoiceNotFound
}

func (f *fakeStore) PendingInvoiceByCommunication(_ context.Context, text string) (models.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.Status == models.InvoicePending && (inv.Communication == text || inv.InvoiceNumber == text) {
			return *inv, nil
		}
	}
	return models.Invoice{}, reconcile.ErrInvoiceNotFound
}

func (f *fakeStore) UpdateInvoiceSettlement(_ context.Context, id uuid.UUID, status models.InvoiceStatus, totalPayments decimal.Decimal, paidAt *time.Time) error {
	inv, ok := f.invoices[id]
	if !ok {
		return reconcile.ErrInvoiceNotFound
	}
	inv.Status = status
	inv.TotalPayments = totalPayments
	inv.PaidAt = paidAt
	f.settlementCalls++
	return nil
}

func (f *fakeStore) TransactionByID(_ context.Context, id uuid.UUID) (models.BankTransaction, error) {
	for _, tx := range f.transactions {
		if tx.ID == id {
			return *tx, nil
		}
	}
	return models.BankTransaction{}, reconcile.ErrTransactionNotFound
}

func (f *fakeStore) UnmatchedTransactions(_ context.Context, limit int) ([]models.BankTransaction, error) {
	var out []models.BankTransaction
	for _, tx := range f.transactions {
		if tx.Status == models.TxUnmatched {
			out = append(out, *tx)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SetTransactionMatch(_ context.Context, id, invoiceID uuid.UUID, status models.TransactionStatus) error {
	for _, tx := range f.transactions {
		if tx.ID == id {
			tx.InvoiceID = &invoiceID
			tx.Status = status
			f.statusTransitions = append(f.statusTransitions, status)
			return nil
		}
	}
	return reconcile.ErrTransactionNotFound
}

func (f *fakeStore) MarkTransactionOverpaid(_ context.Context, id uuid.UUID) error {
	for _, tx := range f.transactions {
		if tx.ID == id {
			tx.Status = models.TxOverpaid
			f.statusTransitions = append(f.statusTransitions, models.TxOverpaid)
			return nil
		}
	}
	return reconcile.ErrTransactionNotFound
}

func (f *fakeStore) MarkTransactionIgnored(_ context.Context, id uuid.UUID) error {
	for _, tx := range f.transactions {
		if tx.ID == id {
			tx.Status = models.TxIgnored
			f.statusTransitions = append(f.statusTransitions, models.TxIgnored)
			return nil
		}
	}
	return reconcile.ErrTransactionNotFound
}

func (f *fakeStore) LatestContributingTransaction(_ context.Context, invoiceID uuid.UUID) (models.BankTransaction, error) {
	var latest *models.BankTransaction
	for _, tx := range f.transactions {
		if tx.InvoiceID != nil && *tx.InvoiceID == invoiceID && tx.Status.Matched() {
			if latest == nil || tx.CreatedAt.After(latest.CreatedAt) {
				latest = tx
			}
		}
	}
	if latest == nil {
		return models.BankTransaction{}, reconcile.ErrTransactionNotFound
	}
	return *latest, nil
}

func (f *fakeStore) SumMatchedPayments(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range f.transactions {
		if tx.InvoiceID != nil && *tx.InvoiceID == invoiceID && tx.Status.Matched() {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (f *fakeStore) RegistrationsByInvoice(_ context.Context, invoiceID uuid.UUID) ([]models.Registration, error) {
	var out []models.Registration
	for _, reg := range f.registrations {
		if reg.InvoiceID != nil && *reg.InvoiceID == invoiceID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (f *fakeStore) SetRegistrationPaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error {
	for _, reg := range f.registrations {
		if reg.ID == id {
			reg.PaymentStatus = status
			if f.onSetRegistration != nil {
				f.onSetRegistration(ctx)
			}
			return nil
		}
	}
	return fmt.Errorf("registration not found: %s", id)
}

func (f *fakeStore) SetRegistrationCancellation(_ context.Context, id uuid.UUID, payment models.PaymentStatus, cancellation models.CancellationStatus) error {
	for _, reg := range f.registrations {
		if reg.ID == id {
			reg.PaymentStatus = payment
			reg.CancellationStatus = cancellation
			return nil
		}
	}
	return fmt.Errorf("registration not found: %s", id)
}

func (f *fakeStore) DecrementSessionCount(_ context.Context, sessionID uuid.UUID) error {
	if f.sessions[sessionID] > 0 {
		f.sessions[sessionID]--
	}
	return nil
}

func (f *fakeStore) sumCredits(invoiceID uuid.UUID, typ models.CreditNoteType) decimal.Decimal {
	sum := decimal.Zero
	for _, note := range f.creditNotes {
		if note.InvoiceID != nil && *note.InvoiceID == invoiceID && note.Type == typ {
			sum = sum.Add(note.Amount)
		}
	}
	return sum
}

func (f *fakeStore) SumCancellationCredits(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return f.sumCredits(invoiceID, models.CreditNoteCancellation), nil
}

func (f *fakeStore) SumOverpaymentCredits(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return f.sumCredits(invoiceID, models.CreditNoteOverpayment), nil
}

func (f *fakeStore) InsertCreditNote(ctx context.Context, note *models.CreditNote) error {
	cp := *note
	cp.CreatedAt = f.tick()
	f.creditNotes = append(f.creditNotes, &cp)
	if f.onInsertCreditNote != nil {
		f.onInsertCreditNote(ctx)
	}
	return nil
}

func (f *fakeStore) MarkCreditNoteSent(_ context.Context, id uuid.UUID) error {
	for _, note := range f.creditNotes {
		if note.ID == id {
			note.Status = models.CreditNoteSent
		}
	}
	return nil
}

func (f *fakeStore) NextCreditNoteNumber(_ context.Context, year int) (string, error) {
	f.seq++
	return fmt.Sprintf("CN-%02d%05d", year%100, f.seq), nil
}

func (f *fakeStore) InsertCancellationRequest(_ context.Context, req *models.CancellationRequest) error {
	cp := *req
	cp.CreatedAt = f.tick()
	f.requests = append(f.requests, &cp)
	return nil
}

func (f *fakeStore) LinkCancellationCreditNote(_ context.Context, requestID, creditNoteID uuid.UUID) error {
	for _, req := range f.requests {
		if req.ID == requestID {
			req.CreditNoteID = &creditNoteID
		}
	}
	return nil
}

func (f *fakeStore) ApprovedCancellation(_ context.Context, registrationID uuid.UUID) (*models.CancellationRequest, error) {
	for _, req := range f.requests {
		if req.RegistrationID == registrationID && req.Status == "approved" {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FilePathImported(_ context.Context, path string) (bool, error) {
	_, ok := f.imports[path]
	return ok, nil
}

func (f *fakeStore) RecordImport(_ context.Context, imp *models.StatementImport) error {
	if _, ok := f.imports[imp.FilePath]; ok {
		return reconcile.ErrDuplicateImport
	}
	cp := *imp
	f.imports[imp.FilePath] = &cp
	return nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, tx *models.BankTransaction) error {
	cp := *tx
	cp.CreatedAt = f.tick()
	f.transactions = append(f.transactions, &cp)
	return nil
}
