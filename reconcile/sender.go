package reconcile

import (
	"context"
	"log/slog"

	"github.com/campdesk/backoffice/models"
)

// Sender dispatches a credit note's document and notification mail. Dispatch
// failures are logged and surfaced as a soft warning; they never roll back
// the credit note that already committed.
type Sender interface {
	SendCreditNote(ctx context.Context, note models.CreditNote) error
}

// LogSender records the dispatch in the log. It stands in for the PDF and
// mail pipeline, which is outside this service.
type LogSender struct{}

func (LogSender) SendCreditNote(_ context.Context, note models.CreditNote) error {
	slog.Info("credit note dispatched",
		"credit_note_number", note.CreditNoteNumber,
		"amount", note.Amount,
		"type", note.Type)
	return nil
}

// NopSender skips dispatch entirely.
type NopSender struct{}

func (NopSender) SendCreditNote(context.Context, models.CreditNote) error { return nil }
