// Package reconcile matches imported bank transactions against outstanding
// invoices and keeps invoice and registration payment status consistent with
// the transactions and credit notes recorded against them.
//
// The Engine owns the whole cascade explicitly: a transaction or credit-note
// change calls Reconcile, Reconcile recomputes totals, derives the invoice
// status, cascades to registrations and, on excess payment, emits an
// overpayment credit note. A context-carried recursion guard turns nested
// re-entrant calls into no-ops.
package reconcile

import (
	"log/slog"
)

// Engine is the reconciliation core. All invoice status decisions go through
// it; no other component writes invoice status.
type Engine struct {
	store   Store
	sender  Sender
	fetcher Fetcher
	log     *slog.Logger
}

// New builds an Engine. A nil sender disables document dispatch; a nil
// fetcher reads statement files from the working directory.
func New(store Store, sender Sender, fetcher Fetcher) *Engine {
	if sender == nil {
		sender = NopSender{}
	}
	if fetcher == nil {
		fetcher = DirFetcher{Root: "."}
	}
	return &Engine{store: store, sender: sender, fetcher: fetcher, log: slog.Default()}
}
