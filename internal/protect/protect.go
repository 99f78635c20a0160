// Package protect makes imported model trees read-only.
package protect

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// DirMode leaves directories traversable but not writable.
	DirMode os.FileMode = 0o555
	// FileMode leaves files readable by everyone and writable by no one.
	FileMode os.FileMode = 0o444

	releasedDirMode  os.FileMode = 0o755
	releasedFileMode os.FileMode = 0o644
)

// Tree walks root and applies DirMode to every directory (root included) and
// FileMode to every regular file. Symlinks are neither followed nor changed.
// Running it on an already protected tree is a no-op.
func Tree(root string) error {
	info, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("protect: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("protect: %s is not a directory", root)
	}
	return walk(root, DirMode, FileMode)
}

// Release reverses Tree so the tree can be removed. It is only used to clean
// up a failed import or a stale reservation.
func Release(root string) error {
	if _, err := os.Lstat(root); err != nil {
		return fmt.Errorf("protect: stat %s: %w", root, err)
	}
	return walk(root, releasedDirMode, releasedFileMode)
}

// walk chmods every entry under root. A directory is chmod-ed before its
// children are read, so DirMode must keep the read and execute bits.
func walk(root string, dirMode, fileMode os.FileMode) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		case d.IsDir():
			return chmod(p, dirMode, true)
		case d.Type().IsRegular():
			return chmod(p, fileMode, false)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("protect: %s: %w", root, err)
	}
	return nil
}
