package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/campdesk/backoffice/models"
	"github.com/campdesk/backoffice/statement"
)

// Fetcher retrieves a statement file from its storage location.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// DirFetcher reads statement files from a local directory, the stand-in for
// the upload bucket.
type DirFetcher struct {
	Root string
}

func (f DirFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Root, filepath.Clean("/"+path)))
}

// ImportSummary reports one statement ingestion run.
type ImportSummary struct {
	BatchID              uuid.UUID `json:"batch_id"`
	TransactionsInserted int       `json:"transactions_inserted"`
	MatchedCount         int       `json:"matched_count"`
	ErrorCount           int       `json:"error_count"`
}

// Import ingests one statement file: dedupe by file path, fetch, parse,
// insert the normalized transactions and run the matcher over the unmatched
// backlog. A file path that was already processed fails with
// ErrDuplicateImport before anything is parsed or inserted.
func (e *Engine) Import(ctx context.Context, input models.ImportInput) (*ImportSummary, error) {
	imported, err := e.store.FilePathImported(ctx, input.FilePath)
	if err != nil {
		return nil, err
	}
	if imported {
		return nil, ErrDuplicateImport
	}

	data, err := e.fetcher.Fetch(ctx, input.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDownloadFailed, err)
	}

	format := input.Format
	if format == "" {
		format = statement.DetectFormat(input.FilePath)
	}
	parsed, err := statement.Parse(data, format)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	if input.BatchID != nil {
		batchID = *input.BatchID
	}
	imp := models.StatementImport{
		ID:               uuid.New(),
		BatchID:          batchID,
		FilePath:         input.FilePath,
		Format:           format,
		TransactionCount: len(parsed),
	}
	if err := e.store.RecordImport(ctx, &imp); err != nil {
		return nil, err
	}

	inserted := 0
	for _, p := range parsed {
		tx := models.BankTransaction{
			ID:            uuid.New(),
			ImportID:      imp.ID,
			ValueDate:     p.ValueDate,
			DateValid:     p.DateValid,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Communication: p.Communication,
			Status:        models.TxUnmatched,
			Notes:         p.Notes,
		}
		if p.ExtractedNumber != "" {
			n := p.ExtractedNumber
			tx.ExtractedNumber = &n
		}
		if p.CounterpartyName != "" {
			n := p.CounterpartyName
			tx.CounterpartyName = &n
		}
		if p.CounterpartyAccount != "" {
			a := p.CounterpartyAccount
			tx.CounterpartyAccount = &a
		}
		if err := e.store.InsertTransaction(ctx, &tx); err != nil {
			e.log.Warn("transaction insert failed", "file", input.FilePath, "sequence", p.SequenceNo, "error", err)
			continue
		}
		inserted++
	}

	matched, failed, err := e.MatchAll(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Info("statement imported",
		"file", input.FilePath, "format", format,
		"inserted", inserted, "matched", matched, "failed", failed)

	return &ImportSummary{
		BatchID:              batchID,
		TransactionsInserted: inserted,
		MatchedCount:         matched,
		ErrorCount:           failed,
	}, nil
}
