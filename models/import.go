package models

import (
	"time"

	"github.com/google/uuid"
)

// StatementImport records one processed statement file. The file path is
// unique so the same statement can never be ingested twice.
type StatementImport struct {
	ID               uuid.UUID `json:"id"`
	BatchID          uuid.UUID `json:"batch_id"`
	FilePath         string    `json:"file_path"`
	Format           string    `json:"format"`
	TransactionCount int       `json:"transaction_count"`
	CreatedAt        time.Time `json:"created_at"`
}
