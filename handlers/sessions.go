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

const sessionSelectQuery = `SELECT id, name, start_date, end_date, price, capacity,
	registered_count, created_at, updated_at FROM sessions`

func scanSession(scanner interface{ Scan(...any) error }) (models.Session, error) {
	var s models.Session
	var startDate, endDate sql.NullTime
	err := scanner.Scan(&s.ID, &s.Name, &startDate, &endDate, &s.Price, &s.Capacity,
		&s.RegisteredCount, &s.CreatedAt, &s.UpdatedAt)
	if startDate.Valid {
		s.StartDate = &startDate.Time
	}
	if endDate.Valid {
		s.EndDate = &endDate.Time
	}
	return s, err
}

// ListSessions lists camp sessions
// @Summary      List sessions
// @Description  Get all camp sessions with seat counts.
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  Response{data=[]models.Session}
// @Router       /sessions [get]
// @Security     BasicAuth
func ListSessions(w http.ResponseWriter, r *http.Request) {
	rows, err := DB.Query(sessionSelectQuery + " ORDER BY start_date, created_at")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sessions = append(sessions, s)
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession retrieves a single session by ID
// @Summary      Get session
// @Description  Get one camp session.
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  Response{data=models.Session}
// @Failure      404  {object}  Response{error=string}
// @Router       /sessions/{id} [get]
// @Security     BasicAuth
func GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	s, err := scanSession(DB.QueryRow(sessionSelectQuery+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// CreateSession creates a new session
// @Summary      Create session
// @Description  Create a new camp session.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        session  body      models.SessionInput  true  "Session contents"
// @Success      201      {object}  Response{data=models.Session}
// @Failure      400      {object}  Response{error=string}
// @Router       /sessions [post]
// @Security     BasicAuth
func CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var id uuid.UUID
	err := DB.QueryRow(`INSERT INTO sessions (name, start_date, end_date, price, capacity)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		input.Name, input.StartDate, input.EndDate, input.Price, input.Capacity).Scan(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s, err := scanSession(DB.QueryRow(sessionSelectQuery+" WHERE id = $1", id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch created session: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// UpdateSession updates an existing session
// @Summary      Update session
// @Description  Update a camp session's details. The seat count is managed by checkouts and cancellations.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Session ID"
// @Param        session  body      models.SessionInput  true  "Updated session contents"
// @Success      200      {object}  Response{data=models.Session}
// @Failure      400      {object}  Response{error=string}
// @Failure      404      {object}  Response{error=string}
// @Router       /sessions/{id} [put]
// @Security     BasicAuth
func UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var input models.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := DB.Exec(`UPDATE sessions SET name = $2, start_date = $3, end_date = $4,
		price = $5, capacity = $6, updated_at = now() WHERE id = $1`,
		id, input.Name, input.StartDate, input.EndDate, input.Price, input.Capacity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s, err := scanSession(DB.QueryRow(sessionSelectQuery+" WHERE id = $1", id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch updated session: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}
