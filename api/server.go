/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:           Request logging
  2. Recoverer:        Panic recovery (500 instead of crash)
  3. RequestID:        Unique ID per request for tracing
  4. CORS:             Cross-origin requests for frontend
  5. RequirePrincipal: Identity headers (all /api routes except health)

SECURITY NOTE:
  Authentication is delegated to an upstream gateway that sets the
  identity headers; see auth.go.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID", "X-Account-Role"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequirePrincipal)

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.CreateAccount)
			r.Get("/me/points", h.GetMyPoints)
			r.Post("/{id}/points", h.GrantPoints)
		})

		// Event catalog routes
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Post("/{id}/tiers", h.AddTiers)
			r.Post("/{id}/promotions", h.CreatePromotion)
		})

		// Transaction lifecycle routes
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Get("/", h.ListTransactions)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/payment-proof", h.SubmitPaymentProof)
			r.Post("/{id}/confirm", h.Confirm)
		})

		// Organizer routes
		r.Route("/organizer", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	return r
}
