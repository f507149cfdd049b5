/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. zap logger: Structured request logging
  4. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS:
  /api/accounts/*        Accounts, balances, deposits
  /api/deposits/*        Deposit correction and reversal
  /api/invoices/*        Invoices with computed balances
  /api/settlements       Settlement batches
  /api/reconciliation/*  Monthly reconciliation
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Post("/{id}/deactivate", h.DeactivateAccount)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/deposits", h.ListDeposits)
			r.Post("/{id}/deposits", h.CreateDeposit)
			r.Get("/{id}/funding", h.GetFundingOptions)
		})

		// Deposit correction routes
		r.Route("/deposits", func(r chi.Router) {
			r.Put("/{id}", h.EditDeposit)
			r.Post("/{id}/reverse", h.ReverseDeposit)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
		})

		// Settlement routes
		r.Post("/settlements", h.SubmitSettlement)

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/{month}", h.GetReconciliation)
			r.Put("/{month}", h.SaveReconciliation)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
