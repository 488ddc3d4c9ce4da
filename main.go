package main

//go:generate swag init

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/campdesk/backoffice/db"
	_ "github.com/campdesk/backoffice/docs"
	"github.com/campdesk/backoffice/handlers"
	"github.com/campdesk/backoffice/ledger"
	"github.com/campdesk/backoffice/reconcile"
)

// @title           Camp Back-Office API
// @version         1.0.0
// @description     Payment reconciliation for camp registrations: statement imports, invoice matching, overpayments and cancellations.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.basic  BasicAuth

func main() {
	// .env is optional, real deployments set the environment directly
	godotenv.Load()

	// Configure structured logging
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Open database
	database, err := db.Open()
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Wire the engine: SQL store, log-only credit note dispatch and a local
	// statement directory standing in for the upload bucket.
	store := ledger.New(database)
	statementDir := os.Getenv("STATEMENT_DIR")
	if statementDir == "" {
		statementDir = "./statements"
	}
	engine := reconcile.New(store, reconcile.LogSender{}, reconcile.DirFetcher{Root: statementDir})

	handlers.DB = database
	handlers.Engine = engine
	handlers.Ledger = store

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// API routes with basic auth
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handlers.BasicAuth)

		// Sessions
		r.Get("/sessions", handlers.ListSessions)
		r.Post("/sessions", handlers.CreateSession)
		r.Get("/sessions/{id}", handlers.GetSession)
		r.Put("/sessions/{id}", handlers.UpdateSession)

		// Invoices
		r.Get("/invoices", handlers.ListInvoices)
		r.Post("/invoices", handlers.CreateInvoice)
		r.Get("/invoices/{id}", handlers.GetInvoice)
		r.Post("/invoices/{id}/mark-paid", handlers.MarkInvoicePaid)

		// Registrations
		r.Get("/registrations", handlers.ListRegistrations)
		r.Get("/registrations/{id}", handlers.GetRegistration)

		// Statement imports
		r.Get("/imports", handlers.ListImports)
		r.Post("/imports", handlers.ImportStatement)
		r.Get("/imports/{id}", handlers.GetImport)

		// Bank transactions
		r.Get("/transactions", handlers.ListTransactions)
		r.Get("/transactions/{id}", handlers.GetTransaction)
		r.Post("/transactions/{id}/match", handlers.MatchTransaction)
		r.Post("/transactions/{id}/ignore", handlers.IgnoreTransaction)

		// Credit notes; issuing refunds is admin-only
		r.Get("/credit-notes", handlers.ListCreditNotes)
		r.Get("/credit-notes/{id}", handlers.GetCreditNote)
		r.With(handlers.AdminOnly).Post("/credit-notes", handlers.CreateCreditNote)

		// Dashboard
		r.Get("/dashboard", handlers.GetDashboard)
	})

	// Swagger UI
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := fmt.Sprintf(":%s", port)
	slog.Info("server starting", "address", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
