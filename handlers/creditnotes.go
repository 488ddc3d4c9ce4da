package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campdesk/backoffice/models"
)

const creditNoteSelectQuery = `SELECT id, credit_note_number, amount, status, type, user_id,
	registration_id, invoice_id, cancellation_request_id, source_transaction_id, created_at
	FROM credit_notes`

func scanCreditNote(scanner interface{ Scan(...any) error }) (models.CreditNote, error) {
	var n models.CreditNote
	var invoiceID, requestID, transactionID uuid.NullUUID
	err := scanner.Scan(&n.ID, &n.CreditNoteNumber, &n.Amount, &n.Status, &n.Type, &n.UserID,
		&n.RegistrationID, &invoiceID, &requestID, &transactionID, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	if invoiceID.Valid {
		n.InvoiceID = &invoiceID.UUID
	}
	if requestID.Valid {
		n.CancellationRequestID = &requestID.UUID
	}
	if transactionID.Valid {
		n.SourceTransactionID = &transactionID.UUID
	}
	return n, nil
}

// ListCreditNotes lists issued credit notes
// @Summary      List credit notes
// @Description  Get credit notes, optionally filtered by invoice, user or type.
// @Tags         credit-notes
// @Produce      json
// @Param        invoice_id  query     string  false  "Filter by invoice"
// @Param        user_id     query     string  false  "Filter by user"
// @Param        type        query     string  false  "Filter by type (overpayment, cancellation)"
// @Success      200         {object}  Response{data=[]models.CreditNote}
// @Router       /credit-notes [get]
// @Security     BasicAuth
func ListCreditNotes(w http.ResponseWriter, r *http.Request) {
	query := creditNoteSelectQuery
	var conditions []string
	var args []any

	if iid := r.URL.Query().Get("invoice_id"); iid != "" {
		invoiceID, err := uuid.Parse(iid)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid invoice_id")
			return
		}
		args = append(args, invoiceID)
		conditions = append(conditions, "invoice_id = $1")
	}
	if uid := r.URL.Query().Get("user_id"); uid != "" {
		userID, err := uuid.Parse(uid)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		args = append(args, userID)
		conditions = append(conditions, "user_id = $"+strconv.Itoa(len(args)))
	}
	if t := r.URL.Query().Get("type"); t != "" {
		args = append(args, t)
		conditions = append(conditions, "type = $"+strconv.Itoa(len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	notes := []models.CreditNote{}
	for rows.Next() {
		n, err := scanCreditNote(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		notes = append(notes, n)
	}
	writeJSON(w, http.StatusOK, notes)
}

// GetCreditNote retrieves a single credit note by ID
// @Summary      Get credit note
// @Description  Get one credit note.
// @Tags         credit-notes
// @Produce      json
// @Param        id   path      string  true  "Credit note ID"
// @Success      200  {object}  Response{data=models.CreditNote}
// @Failure      404  {object}  Response{error=string}
// @Router       /credit-notes/{id} [get]
// @Security     BasicAuth
func GetCreditNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credit note id")
		return
	}
	n, err := scanCreditNote(DB.QueryRow(creditNoteSelectQuery+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "credit note not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateCreditNote runs the cancellation/refund workflow
// @Summary      Cancel registrations
// @Description  Issue credit notes for an invoice's registrations: full, partial or custom refund, optionally cancelling the registrations and freeing their session seats.
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        request  body      models.CreditNoteInput  true  "Cancellation/refund request"
// @Success      201      {object}  Response{data=reconcile.CancelResult}
// @Failure      400      {object}  Response{error=string}
// @Failure      403      {object}  Response{error=string}
// @Router       /credit-notes [post]
// @Security     BasicAuth
func CreateCreditNote(w http.ResponseWriter, r *http.Request) {
	var input models.CreditNoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := Engine.Cancel(r.Context(), input)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
