package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campdesk/backoffice/models"
)

// ImportStatement ingests a bank statement file
// @Summary      Import statement
// @Description  Fetch, parse and ingest one bank statement file, then match the unmatched backlog.
// @Tags         imports
// @Accept       json
// @Produce      json
// @Param        import  body      models.ImportInput  true  "Statement file to ingest"
// @Success      201     {object}  Response{data=reconcile.ImportSummary}
// @Failure      400     {object}  Response{error=string}
// @Router       /imports [post]
// @Security     BasicAuth
func ImportStatement(w http.ResponseWriter, r *http.Request) {
	var input models.ImportInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	summary, err := Engine.Import(r.Context(), input)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// ListImports lists processed statement files
// @Summary      List imports
// @Description  Get the statement files that have been ingested.
// @Tags         imports
// @Produce      json
// @Success      200  {object}  Response{data=[]models.StatementImport}
// @Router       /imports [get]
// @Security     BasicAuth
func ListImports(w http.ResponseWriter, r *http.Request) {
	rows, err := DB.Query(`SELECT id, batch_id, file_path, format, transaction_count, created_at
		FROM statement_imports ORDER BY created_at DESC`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	imports := []models.StatementImport{}
	for rows.Next() {
		var imp models.StatementImport
		if err := rows.Scan(&imp.ID, &imp.BatchID, &imp.FilePath, &imp.Format,
			&imp.TransactionCount, &imp.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		imports = append(imports, imp)
	}
	writeJSON(w, http.StatusOK, imports)
}

// GetImport retrieves one processed statement file
// @Summary      Get import
// @Description  Get one ingested statement file record.
// @Tags         imports
// @Produce      json
// @Param        id   path      string  true  "Import ID"
// @Success      200  {object}  Response{data=models.StatementImport}
// @Failure      404  {object}  Response{error=string}
// @Router       /imports/{id} [get]
// @Security     BasicAuth
func GetImport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid import id")
		return
	}
	var imp models.StatementImport
	err = DB.QueryRow(`SELECT id, batch_id, file_path, format, transaction_count, created_at
		FROM statement_imports WHERE id = $1`, id).
		Scan(&imp.ID, &imp.BatchID, &imp.FilePath, &imp.Format, &imp.TransactionCount, &imp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "import not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, imp)
}
