package registry

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/modelhub/internal/apperr"
)

// maxNameBytes is the usual file name limit of local file systems.
const maxNameBytes = 255

var nameRules = []validation.Rule{
	validation.Required,
	validation.NotIn(".", "..").Error("must not be '.' or '..'"),
	validation.By(singleElement),
}

// singleElement rejects names that are not usable as one directory entry.
func singleElement(v any) error {
	s, _ := v.(string)
	switch {
	case len(s) > maxNameBytes:
		return fmt.Errorf("must be at most %d bytes", maxNameBytes)
	case strings.ContainsAny(s, `/\`):
		return errors.New("must not contain a path separator")
	case strings.ContainsRune(s, 0):
		return errors.New("must not contain a NUL byte")
	}
	return nil
}

// ValidateName checks that name can be used as a single directory under the
// shared root. Any other character, including spaces and non-ASCII letters,
// is accepted.
func ValidateName(name string) error {
	if err := validation.Validate(name, nameRules...); err != nil {
		return fmt.Errorf("%w: name %q: %v", apperr.ErrInvalidInput, name, err)
	}
	return nil
}

// NameFromURL derives a model name from the last path segment of a
// repository URL, dropping a trailing ".git". It understands scp-like
// remotes such as git@host:owner/repo.git.
func NameFromURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, `/\`)
	if i := strings.LastIndexAny(s, `/\:`); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(s, ".git")
}
