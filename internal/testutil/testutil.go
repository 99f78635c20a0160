// Package testutil provides shared test helpers for setting up catalogs,
// shared directories and import sources.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/modelhub/internal/catalog"
	"github.com/starford/modelhub/internal/protect"
	"github.com/starford/modelhub/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "modelhub-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestShared creates a temporary shared directory with a storage provider.
// Protection is released before the directory is removed.
func TestShared(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	t.Cleanup(func() { _ = protect.Release(dir) })
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// LocalModel writes files (relative path to content) under a fresh
// directory named name and returns its path.
func LocalModel(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// StubCloner fakes a git clone by writing a README into the destination.
// A non-nil Err is returned after the files are written.
type StubCloner struct {
	Err error
}

// Clone implements transfer.Cloner.
func (c StubCloner) Clone(_ context.Context, url, dest string) error {
	if err := os.WriteFile(filepath.Join(dest, "README.md"), []byte(url), 0o644); err != nil {
		return err
	}
	return c.Err
}
