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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*       Employee management, balances, submissions
  /api/leave-requests/*  Request lifecycle (decisions, amend, cancel)
  /api/leave-types/*     Policy management
  /api/holidays/*        Company calendar
  /api/admin/*           Entitlement administration

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
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
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Delete("/{id}", h.DeleteEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/leave-requests", h.ListEmployeeLeaveRequests)
			r.Post("/{id}/leave-requests", h.SubmitLeave)
		})

		// Request lifecycle routes
		r.Route("/leave-requests", func(r chi.Router) {
			r.Get("/{id}", h.GetLeaveRequest)
			r.Put("/{id}", h.AmendLeave)
			r.Delete("/{id}", h.DeleteLeaveRequest)
			r.Post("/{id}/manager-decision", h.ManagerDecision)
			r.Post("/{id}/hr-decision", h.HRDecision)
			r.Post("/{id}/cancel", h.CancelLeaveRequest)
		})

		// Policy routes
		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Delete("/{id}", h.DeletePolicy)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/", h.DeleteHoliday)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/entitlements", h.AssignEntitlement)
			r.Post("/accrual", h.RunAccrual)
			r.Post("/reset-period", h.ResetPeriod)
		})
	})

	return r
}
