package api

import (
	"github.com/starford/modelhub/internal/jobs"
	"github.com/starford/modelhub/internal/models"
	"github.com/starford/modelhub/internal/registry"
)

// CloneRequest is the request body for importing a git repository.
type CloneRequest struct {
	URL  string `json:"url" example:"https://github.com/octocat/Hello-World.git" validate:"required"`
	Name string `json:"name,omitempty" example:"Hello-World"`
}

// CopyRequest is the request body for importing a local directory.
type CopyRequest struct {
	Path string `json:"path" example:"/data/models/bert" validate:"required"`
	Name string `json:"name,omitempty" example:"bert"`
}

// Model is a registered model (aliased from the domain layer).
type Model = models.Model

// ImportResponse is returned after a synchronous import.
type ImportResponse struct {
	Model   Model  `json:"model" validate:"required"`
	Message string `json:"message" example:"model \"bert\" copied and protected at \"/shared/bert\"" validate:"required"`
}

// ModelListResponse wraps the catalog listing.
type ModelListResponse struct {
	Models  []Model `json:"models" validate:"required"`
	Total   int     `json:"total" example:"2" validate:"required"`
	Message string  `json:"message,omitempty" example:"no models available"`
}

// Job is an asynchronous import (aliased from the worker).
type Job = jobs.Job

// ReconcileReport is the outcome of a reconciliation pass.
type ReconcileReport = registry.Report

func importResponse(res *registry.Result) ImportResponse {
	return ImportResponse{Model: res.Model, Message: res.Message()}
}
