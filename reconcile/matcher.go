package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campdesk/backoffice/models"
)

// matchAllBatchSize bounds one MatchAll invocation so a large backlog never
// turns into an unbounded long-running unit of work.
const matchAllBatchSize = 50

// MatchResult is the outcome of matching one transaction.
type MatchResult struct {
	InvoiceID uuid.UUID                `json:"invoice_id"`
	Status    models.TransactionStatus `json:"status"`
}

// Match finds a pending invoice for the transaction and classifies the
// payment. Precedence: the extracted invoice number first, then exact
// equality of the raw communication against the invoice's structured
// communication or number. Returns ErrNoMatch when neither hits; the
// transaction then stays unmatched for manual resolution.
func (e *Engine) Match(ctx context.Context, transactionID uuid.UUID) (MatchResult, error) {
	tx, err := e.store.TransactionByID(ctx, transactionID)
	if err != nil {
		return MatchResult{}, ErrTransactionNotFound
	}
	if tx.Status.Matched() && tx.InvoiceID != nil {
		// already settled, never reclassify backwards
		return MatchResult{InvoiceID: *tx.InvoiceID, Status: tx.Status}, nil
	}

	invoice, err := e.findCandidate(ctx, tx)
	if err != nil {
		return MatchResult{}, err
	}
	return e.link(ctx, tx, invoice)
}

// ForceMatch links a transaction to an explicitly chosen invoice, bypassing
// the lookup but not the classification.
func (e *Engine) ForceMatch(ctx context.Context, transactionID, invoiceID uuid.UUID) (MatchResult, error) {
	tx, err := e.store.TransactionByID(ctx, transactionID)
	if err != nil {
		return MatchResult{}, ErrTransactionNotFound
	}
	invoice, err := e.store.InvoiceByID(ctx, invoiceID)
	if err != nil {
		return MatchResult{}, ErrInvoiceNotFound
	}
	return e.link(ctx, tx, invoice)
}

// Ignore takes an unmatched transaction out of the matching backlog, for
// movements that will never correspond to an invoice (bank fees, unrelated
// transfers). Statuses only move forward, so a matched transaction cannot
// be ignored.
func (e *Engine) Ignore(ctx context.Context, transactionID uuid.UUID) (models.BankTransaction, error) {
	tx, err := e.store.TransactionByID(ctx, transactionID)
	if err != nil {
		return models.BankTransaction{}, ErrTransactionNotFound
	}
	if tx.Status != models.TxUnmatched {
		return models.BankTransaction{}, validationf("only unmatched transactions can be ignored")
	}
	if err := e.store.MarkTransactionIgnored(ctx, tx.ID); err != nil {
		return models.BankTransaction{}, err
	}
	tx.Status = models.TxIgnored
	e.log.Info("transaction ignored", "transaction_id", tx.ID)
	return tx, nil
}

func (e *Engine) findCandidate(ctx context.Context, tx models.BankTransaction) (models.Invoice, error) {
	if tx.ExtractedNumber != nil && *tx.ExtractedNumber != "" {
		invoice, err := e.store.PendingInvoiceByNumber(ctx, *tx.ExtractedNumber)
		if err == nil {
			return invoice, nil
		}
		if !errors.Is(err, ErrInvoiceNotFound) {
			return models.Invoice{}, err
		}
	}
	if tx.Communication != "" {
		invoice, err := e.store.PendingInvoiceByCommunication(ctx, tx.Communication)
		if err == nil {
			return invoice, nil
		}
		if !errors.Is(err, ErrInvoiceNotFound) {
			return models.Invoice{}, err
		}
	}
	return models.Invoice{}, ErrNoMatch
}

// link classifies the payment against the invoice amount, persists the match
// and reconciles the invoice. Classification compares the stored decimal
// amounts exactly.
func (e *Engine) link(ctx context.Context, tx models.BankTransaction, invoice models.Invoice) (MatchResult, error) {
	var status models.TransactionStatus
	switch tx.Amount.Cmp(invoice.Amount) {
	case 0:
		status = models.TxMatched
	case 1:
		status = models.TxOverpaid
	default:
		status = models.TxPartiallyMatched
	}

	if err := e.store.SetTransactionMatch(ctx, tx.ID, invoice.ID, status); err != nil {
		return MatchResult{}, err
	}
	if err := e.Reconcile(ctx, invoice.ID); err != nil {
		return MatchResult{}, err
	}
	return MatchResult{InvoiceID: invoice.ID, Status: status}, nil
}

// MatchAll processes the unmatched backlog, at most matchAllBatchSize
// transactions per call. Individual failures are logged and counted, never
// aborting the rest of the batch.
func (e *Engine) MatchAll(ctx context.Context) (matched, failed int, err error) {
	backlog, err := e.store.UnmatchedTransactions(ctx, matchAllBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, tx := range backlog {
		if _, err := e.Match(ctx, tx.ID); err != nil {
			failed++
			if errors.Is(err, ErrNoMatch) {
				e.log.Debug("transaction left unmatched", "transaction_id", tx.ID)
			} else {
				e.log.Warn("matching failed", "transaction_id", tx.ID, "error", err)
			}
			continue
		}
		matched++
	}
	return matched, failed, nil
}
