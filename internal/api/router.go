package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tag hierarchy.
	r.Get("/tags", h.ListTags)

	// Queries.
	r.Get("/filter", h.Filter)
	r.Get("/intersect", h.Intersect)
	r.Get("/inspect", h.Inspect)
	r.Get("/search", h.Search)

	// Mutations.
	r.Post("/assign", h.Assign)
	r.Post("/remove", h.Remove)
	r.Post("/apply", h.Apply)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
