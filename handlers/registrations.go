package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campdesk/backoffice/models"
)

const registrationSelectQuery = `SELECT r.id, r.user_id, r.kid_name, r.session_id, r.price,
	r.payment_status, r.cancellation_status, r.invoice_id, r.created_at, r.updated_at, s.name
	FROM registrations r
	LEFT JOIN sessions s ON r.session_id = s.id`

func scanRegistration(scanner interface{ Scan(...any) error }) (models.Registration, error) {
	var reg models.Registration
	var invoiceID uuid.NullUUID
	var sessionName sql.NullString
	err := scanner.Scan(&reg.ID, &reg.UserID, &reg.KidName, &reg.SessionID, &reg.Price,
		&reg.PaymentStatus, &reg.CancellationStatus, &invoiceID, &reg.CreatedAt, &reg.UpdatedAt,
		&sessionName)
	if err != nil {
		return reg, err
	}
	if invoiceID.Valid {
		reg.InvoiceID = &invoiceID.UUID
	}
	if sessionName.Valid {
		reg.SessionName = &sessionName.String
	}
	return reg, nil
}

// ListRegistrations lists registrations
// @Summary      List registrations
// @Description  Get registrations, optionally filtered by invoice, user, session or payment status.
// @Tags         registrations
// @Produce      json
// @Param        invoice_id      query     string  false  "Filter by invoice"
// @Param        user_id         query     string  false  "Filter by user"
// @Param        session_id      query     string  false  "Filter by session"
// @Param        payment_status  query     string  false  "Filter by payment status"
// @Success      200             {object}  Response{data=[]models.Registration}
// @Router       /registrations [get]
// @Security     BasicAuth
func ListRegistrations(w http.ResponseWriter, r *http.Request) {
	query := registrationSelectQuery
	var conditions []string
	var args []any

	for param, column := range map[string]string{
		"invoice_id": "r.invoice_id",
		"user_id":    "r.user_id",
		"session_id": "r.session_id",
	} {
		if v := r.URL.Query().Get(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+param)
				return
			}
			args = append(args, id)
			conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
		}
	}
	if s := r.URL.Query().Get("payment_status"); s != "" {
		args = append(args, s)
		conditions = append(conditions, "r.payment_status = $"+strconv.Itoa(len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.created_at DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	registrations := []models.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		registrations = append(registrations, reg)
	}
	writeJSON(w, http.StatusOK, registrations)
}

// GetRegistration retrieves a single registration by ID
// @Summary      Get registration
// @Description  Get one registration with its session name.
// @Tags         registrations
// @Produce      json
// @Param        id   path      string  true  "Registration ID"
// @Success      200  {object}  Response{data=models.Registration}
// @Failure      404  {object}  Response{error=string}
// @Router       /registrations/{id} [get]
// @Security     BasicAuth
func GetRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid registration id")
		return
	}
	reg, err := scanRegistration(DB.QueryRow(registrationSelectQuery+" WHERE r.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "registration not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, reg)
}
