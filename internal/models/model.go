// Package models defines the domain types for modelhub.
package models

import "time"

// Source is the origin kind of an imported model.
type Source string

const (
	SourceGit   Source = "git"
	SourceLocal Source = "local"
)

// Status tracks the two-phase registration of a model.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
)

// Model is one row of the catalog.
type Model struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Source    Source    `json:"source"`
	Origin    string    `json:"origin"` // remote URL or local source path
	Path      string    `json:"path"`   // location of the protected copy
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
