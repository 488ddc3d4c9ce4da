package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type dashboardData struct {
	TotalInvoices      int `json:"total_invoices"`
	TotalRegistrations int `json:"total_registrations"`
	TotalTransactions  int `json:"total_transactions"`
	TotalCreditNotes   int `json:"total_credit_notes"`

	PendingInvoices       int `json:"pending_invoices"`
	UnmatchedTransactions int `json:"unmatched_transactions"`

	Outstanding     decimal.Decimal `json:"outstanding"`      // unpaid remainder across pending invoices
	UnmatchedAmount decimal.Decimal `json:"unmatched_amount"` // credits waiting for manual resolution
	CreditsIssued   decimal.Decimal `json:"credits_issued"`

	RecentTransactions []map[string]any `json:"recent_transactions"`
}

// GetDashboard retrieves dashboard summary statistics
// @Summary      Get dashboard
// @Description  Get totals for invoices, registrations, transactions and credit notes, plus outstanding amounts.
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  Response{data=dashboardData}
// @Router       /dashboard [get]
// @Security     BasicAuth
func GetDashboard(w http.ResponseWriter, r *http.Request) {
	var d dashboardData

	DB.QueryRow("SELECT COUNT(*) FROM invoices").Scan(&d.TotalInvoices)
	DB.QueryRow("SELECT COUNT(*) FROM registrations").Scan(&d.TotalRegistrations)
	DB.QueryRow("SELECT COUNT(*) FROM bank_transactions").Scan(&d.TotalTransactions)
	DB.QueryRow("SELECT COUNT(*) FROM credit_notes").Scan(&d.TotalCreditNotes)

	DB.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'pending'").Scan(&d.PendingInvoices)
	DB.QueryRow("SELECT COUNT(*) FROM bank_transactions WHERE status = 'unmatched'").Scan(&d.UnmatchedTransactions)

	DB.QueryRow(`SELECT COALESCE(SUM(amount - total_payments), 0) FROM invoices
		WHERE status = 'pending'`).Scan(&d.Outstanding)
	DB.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM bank_transactions
		WHERE status = 'unmatched' AND amount > 0`).Scan(&d.UnmatchedAmount)
	DB.QueryRow("SELECT COALESCE(SUM(amount), 0) FROM credit_notes").Scan(&d.CreditsIssued)

	// Recent 5 movements
	rows, err := DB.Query(`SELECT id, value_date, amount, currency, communication, status
		FROM bank_transactions ORDER BY created_at DESC LIMIT 5`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var t struct {
				ID            string
				ValueDate     string
				Amount        decimal.Decimal
				Currency      string
				Communication string
				Status        string
			}
			rows.Scan(&t.ID, &t.ValueDate, &t.Amount, &t.Currency, &t.Communication, &t.Status)
			d.RecentTransactions = append(d.RecentTransactions, map[string]any{
				"id":            t.ID,
				"value_date":    t.ValueDate,
				"amount":        t.Amount,
				"currency":      t.Currency,
				"communication": t.Communication,
				"status":        t.Status,
			})
		}
	}
	if d.RecentTransactions == nil {
		d.RecentTransactions = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, d)
}
