package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextSeq bumps the named counter and returns the new value. The upsert takes
// a row lock, so concurrent callers get distinct numbers.
func nextSeq(ctx context.Context, q querier, kind string, year int) (int64, error) {
	var value int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO sequences (kind, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (kind, year) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, kind, year).Scan(&value)
	return value, err
}

func invoiceNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%05d", day.Format("060102"), seq)
}

// NextCreditNoteNumber issues the next credit note number for the given year,
// CN-YY#####.
func (s *Store) NextCreditNoteNumber(ctx context.Context, year int) (string, error) {
	seq, err := nextSeq(ctx, s.db, "credit_note", year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CN-%02d%05d", year%100, seq), nil
}
