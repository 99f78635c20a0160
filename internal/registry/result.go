package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/modelhub/internal/models"
)

// NoModelsMessage is what an empty Listing renders as.
const NoModelsMessage = "no models available"

// Result is the success value of an import.
type Result struct {
	models.Model
}

// Message returns a human-readable confirmation naming the model and its location.
func (r Result) Message() string {
	verb := "copied"
	if r.Source == models.SourceGit {
		verb = "cloned"
	}
	return fmt.Sprintf("model %q %s and protected at %q", r.Name, verb, r.Path)
}

// Listing is the result of List. An empty Listing is the "no models
// available" sentinel rather than a blank rendering.
type Listing struct {
	Models []models.Model `json:"models"`
}

// Empty reports whether no model is registered.
func (l Listing) Empty() bool {
	return len(l.Models) == 0
}

// String renders the listing as text.
func (l Listing) String() string {
	if l.Empty() {
		return NoModelsMessage
	}
	var b strings.Builder
	b.WriteString("available models:\n")
	for _, m := range l.Models {
		fmt.Fprintf(&b, " - %s [%s] -> %s\n   path: %s (created: %s)\n",
			m.Name, m.Source, m.Origin, m.Path, m.CreatedAt.Format(time.RFC3339))
	}
	return b.String()
}
