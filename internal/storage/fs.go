package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/protect"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the shared directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute shared directory.
func (f *FS) Root() string { return f.root }

// Target resolves name against the root. Names must be a single path
// element; anything that would land outside the root is rejected.
func (f *FS) Target(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid model name %q", apperr.ErrInvalidInput, name)
	}
	abs := filepath.Join(f.root, name)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: name escapes shared root: %q", apperr.ErrInvalidInput, name)
	}
	return abs, nil
}

// Claim creates the destination directory with os.Mkdir so that an existing
// entry is never merged into.
func (f *FS) Claim(name string) (string, error) {
	abs, err := f.Target(name)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", apperr.ErrDestinationConflict, abs)
		}
		return "", fmt.Errorf("storage: claim %s: %w", abs, err)
	}
	return abs, nil
}

// Remove deletes name's target after releasing its protection.
// A missing target is not an error.
func (f *FS) Remove(name string) error {
	abs, err := f.Target(name)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := protect.Release(abs); err != nil {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	return nil
}

// Entries lists the top-level names under the root, sorted.
func (f *FS) Entries() ([]string, error) {
	des, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]string, 0, len(des))
	for _, d := range des {
		out = append(out, d.Name())
	}
	sort.Strings(out)
	return out, nil
}
