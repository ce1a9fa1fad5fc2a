package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ulule/limiter/v3"

	"github.com/starford/lendr/internal/lending"
)

// RouterConfig holds the gateway settings that shape the router.
type RouterConfig struct {
	// AuthMode is AuthModeStatic or AuthModeForward.
	AuthMode string
	// Token guards the gateway in static mode. Empty disables the check.
	Token string
	// Limiter, if non-nil, limits requests per client IP.
	Limiter *limiter.Limiter
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *lending.Service, admin *lending.Admin, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)
	ah := NewAdminHandler(admin)

	r := chi.NewRouter()
	if cfg.Limiter != nil {
		r.Use(RateLimitMiddleware(cfg.Limiter))
	}
	r.Use(AuthMiddleware(cfg.AuthMode, cfg.Token))

	r.Get("/policy", h.Policy)
	r.Get("/books", h.ListBooks)
	r.Get("/loans", h.ListLoans)
	r.Get("/dashboard", h.Dashboard)

	r.Post("/borrow/check", h.CheckBorrow)
	r.Post("/books/{id}/borrow", h.Borrow)
	r.Post("/loans/{id}/return", h.Return)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", ah.Stats)
		r.Get("/books", ah.ListBooks)
		r.Post("/books", ah.CreateBook)
		r.Put("/books/{id}", ah.UpdateBook)
		r.Delete("/books/{id}", ah.DeleteBook)
		r.Get("/users", ah.ListUsers)
		r.Delete("/users/{id}", ah.DeleteUser)
		r.Get("/transactions", ah.ListTransactions)
	})

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
