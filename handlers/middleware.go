package handlers

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/campdesk/backoffice/ledger"
	"github.com/campdesk/backoffice/reconcile"
	"github.com/campdesk/backoffice/statement"
)

// Response is the standard JSON envelope for all API responses.
type Response struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// DB is the shared database connection used by all handlers.
var DB *sql.DB

// Engine runs matching, reconciliation and cancellation.
var Engine *reconcile.Engine

// Ledger creates invoices and registrations at checkout.
var Ledger *ledger.Store

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: msg})
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *reconcile.ValidationError
	var perr *statement.ParseError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.As(err, &perr):
		writeError(w, http.StatusBadRequest, perr.Error())
	case errors.Is(err, reconcile.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "invoice not found")
	case errors.Is(err, reconcile.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, reconcile.ErrNoMatch):
		writeError(w, http.StatusNotFound, "no matching invoice found")
	case errors.Is(err, reconcile.ErrDuplicateImport):
		writeError(w, http.StatusBadRequest, "statement file already imported")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type ctxKey string

const roleKey ctxKey = "role"

// BasicAuth enforces HTTP Basic Authentication. Two credential pairs are
// recognized: AUTH_USER/AUTH_PASS for back-office staff and
// ADMIN_USER/ADMIN_PASS for admins, who may also approve refunds.
func BasicAuth(next http.Handler) http.Handler {
	user := os.Getenv("AUTH_USER")
	pass := os.Getenv("AUTH_PASS")
	adminUser := os.Getenv("ADMIN_USER")
	adminPass := os.Getenv("ADMIN_PASS")

	// If no credentials are configured, skip auth
	if user == "" && pass == "" && adminUser == "" && adminPass == "" {
		slog.Warn("AUTH_USER and ADMIN_USER not set, API is unauthenticated")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, "admin")))
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="backoffice"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var role string
		switch {
		case adminUser != "" && credentialsMatch(u, p, adminUser, adminPass):
			role = "admin"
		case user != "" && credentialsMatch(u, p, user, pass):
			role = "staff"
		default:
			w.Header().Set("WWW-Authenticate", `Basic realm="backoffice"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, role)))
	})
}

func credentialsMatch(u, p, wantUser, wantPass string) bool {
	return subtle.ConstantTimeCompare([]byte(u), []byte(wantUser)) == 1 &&
		subtle.ConstantTimeCompare([]byte(p), []byte(wantPass)) == 1
}

// AdminOnly rejects requests not authenticated with the admin credentials.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role, _ := r.Context().Value(roleKey).(string); role != "admin" {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
