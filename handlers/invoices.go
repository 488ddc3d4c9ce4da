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

	"github.com/campdesk/backoffice/ledger"
	"github.com/campdesk/backoffice/models"
)

const invoiceSelectQuery = `SELECT id, invoice_number, user_id, amount, status, due_date,
	communication, total_payments, paid_at, created_at, updated_at FROM invoices`

func scanInvoice(scanner interface{ Scan(...any) error }) (models.Invoice, error) {
	var inv models.Invoice
	var dueDate, paidAt sql.NullTime
	err := scanner.Scan(&inv.ID, &inv.InvoiceNumber, &inv.UserID, &inv.Amount, &inv.Status,
		&dueDate, &inv.Communication, &inv.TotalPayments, &paidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	return inv, err
}

func getInvoiceByID(id uuid.UUID) (models.Invoice, error) {
	inv, err := scanInvoice(DB.QueryRow(invoiceSelectQuery+" WHERE id = $1", id))
	if err != nil {
		return inv, err
	}
	inv.RegistrationIDs, err = relatedIDs(`SELECT id FROM registrations WHERE invoice_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return inv, err
	}
	inv.TransactionIDs, err = relatedIDs(`SELECT id FROM bank_transactions WHERE invoice_id = $1 ORDER BY created_at`, id)
	return inv, err
}

func relatedIDs(query string, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := DB.Query(query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var related uuid.UUID
		if err := rows.Scan(&related); err != nil {
			return nil, err
		}
		ids = append(ids, related)
	}
	return ids, rows.Err()
}

// ListInvoices lists all invoices
// @Summary      List invoices
// @Description  Get a list of invoices, with payment totals and lifecycle status.
// @Tags         invoices
// @Produce      json
// @Param        status   query     string  false  "Filter by status (pending, paid, cancelled)"
// @Param        user_id  query     string  false  "Filter by user"
// @Param        search   query     string  false  "Search by invoice number or communication"
// @Success      200      {object}  Response{data=[]models.Invoice}
// @Router       /invoices [get]
// @Security     BasicAuth
func ListInvoices(w http.ResponseWriter, r *http.Request) {
	query := invoiceSelectQuery
	var conditions []string
	var args []any

	if s := r.URL.Query().Get("status"); s != "" {
		args = append(args, s)
		conditions = append(conditions, "status = $1")
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
	if search := r.URL.Query().Get("search"); search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		conditions = append(conditions, "(invoice_number ILIKE $"+n+" OR communication ILIKE $"+n+")")
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

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		invoices = append(invoices, inv)
	}
	writeJSON(w, http.StatusOK, invoices)
}

// GetInvoice retrieves a single invoice by ID
// @Summary      Get invoice
// @Description  Get one invoice with its registration and transaction links.
// @Tags         invoices
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  Response{data=models.Invoice}
// @Failure      404  {object}  Response{error=string}
// @Router       /invoices/{id} [get]
// @Security     BasicAuth
func GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	inv, err := getInvoiceByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "invoice not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// CreateInvoice creates an invoice with its registrations
// @Summary      Create invoice
// @Description  Checkout: create an invoice plus one registration per line, and take session seats.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        invoice  body      models.InvoiceInput  true  "Checkout contents"
// @Success      201      {object}  Response{data=models.Invoice}
// @Failure      400      {object}  Response{error=string}
// @Router       /invoices [post]
// @Security     BasicAuth
func CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var input models.InvoiceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	inv, _, err := Ledger.CreateInvoice(r.Context(), input)
	if err != nil {
		if errors.Is(err, ledger.ErrSessionNotFound) || errors.Is(err, ledger.ErrSessionFull) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// MarkInvoicePaid marks an invoice as paid
// @Summary      Mark invoice paid
// @Description  Manually settle an invoice, optionally force-matching one transaction to it first.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path      string                true   "Invoice ID"
// @Param        payment  body      models.MarkPaidInput  false  "Optional transaction to force-match"
// @Success      200      {object}  Response{data=models.Invoice}
// @Failure      404      {object}  Response{error=string}
// @Router       /invoices/{id}/mark-paid [post]
// @Security     BasicAuth
func MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	var input models.MarkPaidInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	if err := Engine.MarkPaid(r.Context(), id, input.TransactionID); err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := getInvoiceByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch invoice: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
