package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/modelhub/internal/jobs"
	"github.com/starford/modelhub/internal/registry"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// queue, if non-nil, serves ?async=true imports and GET /jobs/{id}.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *registry.Service, queue *jobs.Queue, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, queue)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Models.
	r.Get("/models", h.ListModels)
	r.Post("/models/clone", h.CloneModel)
	r.Post("/models/copy", h.CopyModel)
	r.Get("/models/{name}", h.GetModel)
	r.Delete("/models/{name}", h.DeleteModel)

	// Background imports.
	r.Get("/jobs/{id}", h.GetJob)

	// Admin.
	r.Post("/admin/reconcile", h.Reconcile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
