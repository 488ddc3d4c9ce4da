package reconcile

import "errors"

// Sentinel errors surfaced to the API layer. NoMatch and InvoiceNotFound are
// expected outcomes: the transaction simply stays unmatched for manual
// resolution.
var (
	ErrNoMatch             = errors.New("no matching invoice found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateImport     = errors.New("statement file already imported")
	ErrDownloadFailed      = errors.New("statement file could not be fetched")
)

// ValidationError rejects an inconsistent request shape before any mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(msg string) error { return &ValidationError{Msg: msg} }
