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
	"github.com/campdesk/backoffice/reconcile"
)

const transactionSelectQuery = `SELECT id, import_id, value_date, date_valid, amount, currency,
	communication, extracted_number, counterparty_name, counterparty_account, status, invoice_id,
	notes, created_at, updated_at FROM bank_transactions`

func scanTransaction(scanner interface{ Scan(...any) error }) (models.BankTransaction, error) {
	var t models.BankTransaction
	var extracted, cptyName, cptyAccount, notes sql.NullString
	var invoiceID uuid.NullUUID
	err := scanner.Scan(&t.ID, &t.ImportID, &t.ValueDate, &t.DateValid, &t.Amount, &t.Currency,
		&t.Communication, &extracted, &cptyName, &cptyAccount, &t.Status, &invoiceID, &notes,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if extracted.Valid {
		t.ExtractedNumber = &extracted.String
	}
	if cptyName.Valid {
		t.CounterpartyName = &cptyName.String
	}
	if cptyAccount.Valid {
		t.CounterpartyAccount = &cptyAccount.String
	}
	if invoiceID.Valid {
		t.InvoiceID = &invoiceID.UUID
	}
	if notes.Valid && notes.String != "" {
		t.Notes = strings.Split(notes.String, "\n")
	}
	return t, nil
}

// ListTransactions lists imported bank transactions
// @Summary      List transactions
// @Description  Get imported bank transactions, optionally filtered by match status or invoice.
// @Tags         transactions
// @Produce      json
// @Param        status      query     string  false  "Filter by status (unmatched, matched, partially_matched, overpaid, ignored)"
// @Param        invoice_id  query     string  false  "Filter by matched invoice"
// @Success      200         {object}  Response{data=[]models.BankTransaction}
// @Router       /transactions [get]
// @Security     BasicAuth
func ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := transactionSelectQuery
	var conditions []string
	var args []any

	if s := r.URL.Query().Get("status"); s != "" {
		args = append(args, s)
		conditions = append(conditions, "status = $1")
	}
	if iid := r.URL.Query().Get("invoice_id"); iid != "" {
		invoiceID, err := uuid.Parse(iid)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid invoice_id")
			return
		}
		args = append(args, invoiceID)
		conditions = append(conditions, "invoice_id = $"+strconv.Itoa(len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY value_date DESC, created_at DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	transactions := []models.BankTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		transactions = append(transactions, t)
	}
	writeJSON(w, http.StatusOK, transactions)
}

// GetTransaction retrieves a single transaction by ID
// @Summary      Get transaction
// @Description  Get one imported bank transaction.
// @Tags         transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  Response{data=models.BankTransaction}
// @Failure      404  {object}  Response{error=string}
// @Router       /transactions/{id} [get]
// @Security     BasicAuth
func GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	t, err := scanTransaction(DB.QueryRow(transactionSelectQuery+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "transaction not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// MatchTransaction matches a transaction against an invoice
// @Summary      Match transaction
// @Description  Run the matching rules on one transaction, or force a match against the given invoice.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        id     path      string                   true   "Transaction ID"
// @Param        match  body      models.ManualMatchInput  false  "Optional invoice to force-match"
// @Success      200    {object}  Response{data=reconcile.MatchResult}
// @Failure      404    {object}  Response{error=string}
// @Router       /transactions/{id}/match [post]
// @Security     BasicAuth
func MatchTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	var input models.ManualMatchInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	result, err := matchOne(r, id, input.InvoiceID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// IgnoreTransaction takes a transaction out of the matching backlog
// @Summary      Ignore transaction
// @Description  Mark an unmatched transaction as ignored so it no longer shows up for matching.
// @Tags         transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  Response{data=models.BankTransaction}
// @Failure      400  {object}  Response{error=string}
// @Failure      404  {object}  Response{error=string}
// @Router       /transactions/{id}/ignore [post]
// @Security     BasicAuth
func IgnoreTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	t, err := Engine.Ignore(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func matchOne(r *http.Request, transactionID uuid.UUID, invoiceID *uuid.UUID) (reconcile.MatchResult, error) {
	if invoiceID != nil {
		return Engine.ForceMatch(r.Context(), transactionID, *invoiceID)
	}
	return Engine.Match(r.Context(), transactionID)
}
