package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/modelhub/internal/jobs"
	"github.com/starford/modelhub/internal/registry"
)

// Handler holds API route handlers.
type Handler struct {
	svc   *registry.Service
	queue *jobs.Queue
}

// NewHandler creates a new Handler. queue may be nil, in which case
// asynchronous imports are rejected.
func NewHandler(svc *registry.Service, queue *jobs.Queue) *Handler {
	return &Handler{svc: svc, queue: queue}
}

func wantsAsync(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return v
}

// CloneModel handles POST /api/models/clone.
//
//	@Summary		Import a model by cloning a git repository
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			async	query		bool			false	"Run on the background worker"
//	@Param			body	body		CloneRequest	true	"Repository to clone"
//	@Success		201		{object}	ImportResponse
//	@Success		202		{object}	Job
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/clone [post]
func (h *Handler) CloneModel(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body", ""))
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required", ""))
		return
	}
	h.runImport(w, r, "clone", req.URL, func(ctx context.Context) (*registry.Result, error) {
		return h.svc.Clone(ctx, req.URL, req.Name)
	})
}

// CopyModel handles POST /api/models/copy.
//
//	@Summary		Import a model by copying a local directory
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			async	query		bool		false	"Run on the background worker"
//	@Param			body	body		CopyRequest	true	"Directory to copy"
//	@Success		201		{object}	ImportResponse
//	@Success		202		{object}	Job
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/copy [post]
func (h *Handler) CopyModel(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body", ""))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required", ""))
		return
	}
	h.runImport(w, r, "copy", req.Path, func(ctx context.Context) (*registry.Result, error) {
		return h.svc.CopyLocal(ctx, req.Path, req.Name)
	})
}

// runImport executes fn inline, or on the job queue when ?async=true.
func (h *Handler) runImport(w http.ResponseWriter, r *http.Request, kind, target string, fn func(context.Context) (*registry.Result, error)) {
	if !wantsAsync(r) {
		res, err := fn(r.Context())
		if err != nil {
			writeError(w, kind, err)
			return
		}
		writeJSON(w, http.StatusCreated, importResponse(res))
		return
	}

	if h.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("background jobs are disabled", ""))
		return
	}
	job, err := h.queue.Submit(kind, target, func(ctx context.Context) (any, error) {
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return importResponse(res), nil
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error(), ""))
			return
		}
		writeError(w, kind, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// ListModels handles GET /api/models.
//
//	@Summary		List registered models
//	@Tags			models
//	@Produce		json
//	@Success		200	{object}	ModelListResponse
//	@Security		BearerAuth
//	@Router			/models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list models", err)
		return
	}
	resp := ModelListResponse{Models: listing.Models, Total: len(listing.Models)}
	if listing.Empty() {
		resp.Message = registry.NoModelsMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetModel handles GET /api/models/{name}.
//
//	@Summary		Get a registered model by name
//	@Tags			models
//	@Produce		json
//	@Param			name	path		string	true	"Model name"
//	@Success		200		{object}	Model
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{name} [get]
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, "get model", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteModel handles DELETE /api/models/{name}.
//
//	@Summary		Remove a model from the catalog
//	@Description	Files in the shared directory are left in place.
//	@Tags			models
//	@Param			name	path	string	true	"Model name"
//	@Success		204		"Record deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{name} [delete]
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.Delete(r.Context(), name); err != nil {
		writeError(w, "delete model", err)
		return
	}
	slog.Debug("model deleted via api", slog.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}

// GetJob handles GET /api/jobs/{id}.
//
//	@Summary		Poll an asynchronous import
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	Job
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeJSON(w, http.StatusNotFound, errorBody("background jobs are disabled", ""))
		return
	}
	job, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Reconcile handles POST /api/admin/reconcile.
//
//	@Summary		Reconcile the catalog with the shared directory
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	ReconcileReport
//	@Security		BearerAuth
//	@Router			/admin/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconcile(r.Context())
	if err != nil {
		writeError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
