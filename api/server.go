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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the reporting frontend

ROUTE GROUPS:
  /api/events/*      Billing/unloading event recording and deletion
  /api/vehicles/*    Per-vehicle balances and cards
  /api/cards         Bulk card listing for a date
  /api/snapshots     Month-end snapshot listing
  /api/admin/*       Epoch seeding and chain verification

SECURITY NOTE:
  No authentication middleware. The service runs inside the dealer's
  network; the reporting frontend is the only client.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. allowedOrigins
// feeds the CORS middleware; an empty list falls back to localhost dev
// origins.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Event routes
		r.Route("/events", func(r chi.Router) {
			r.Post("/billing", h.RecordBilling)
			r.Post("/unloading", h.RecordUnloading)
			r.Delete("/{id}", h.DeleteEvent)
		})

		// Vehicle routes
		r.Route("/vehicles/{vehicle}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/balances", h.GetBalanceSeries)
			r.Get("/opening", h.GetOpeningBalance)
			r.Get("/cards", h.GetVehicleCards)
		})

		// Bulk card listing
		r.Get("/cards", h.GetCards)

		// Snapshot routes
		r.Get("/snapshots", h.ListSnapshots)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/seed", h.SeedOpening)
			r.Post("/verify", h.VerifyChain)
		})
	})

	return r
}
