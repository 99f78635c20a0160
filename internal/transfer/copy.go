package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// CopyTree recursively copies the directory src into dst, preserving
// structure. dst must be absent or an empty directory. Regular files keep
// their content, mode and modification time. Symlinks are dereferenced: the
// file or directory they point to is copied in their place, so dst never
// refers to anything outside itself. A dangling symlink or a symlink loop is
// an error. Other special files are skipped. Files are copied in parallel.
//
// A partially copied dst is left in place on error; callers own cleanup.
func CopyTree(ctx context.Context, src, dst string) error {
	src, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("copy: resolve source: %w", err)
	}
	dst, err = filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("copy: resolve destination: %w", err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("copy: %s is not a directory", src)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	c := &copier{ctx: gctx, g: g, dst: resolveParent(dst), active: map[string]struct{}{}}

	walkErr := c.dir(src, dst, info.Mode().Perm(), true)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if walkErr != nil {
		return fmt.Errorf("copy: %w", walkErr)
	}
	return nil
}

// copier walks the source by hand so that symlinked directories can be
// entered while the real paths on the current branch are tracked.
type copier struct {
	ctx    context.Context
	g      *errgroup.Group
	dst    string              // destination with its parent resolved
	active map[string]struct{} // resolved paths of directories being copied
}

func (c *copier) dir(src, dst string, perm fs.FileMode, root bool) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}
	if _, loop := c.active[resolved]; loop {
		return fmt.Errorf("symlink loop at %s", src)
	}
	if within(resolved, c.dst) {
		return fmt.Errorf("destination %s is inside source %s", c.dst, src)
	}
	c.active[resolved] = struct{}{}
	defer delete(c.active, resolved)

	// Owner write is kept so the tree can be filled; protection tightens
	// modes afterwards.
	mode := perm | 0o700
	if root {
		if err := os.Mkdir(dst, mode); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
		if err := os.Chmod(dst, mode); err != nil {
			return err
		}
	} else if err := os.Mkdir(dst, mode); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(src, e.Name())
		target := filepath.Join(dst, e.Name())

		// Stat follows symlinks, so a link is handled as whatever it points to.
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		switch {
		case info.IsDir():
			if err := c.dir(p, target, info.Mode().Perm(), false); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			c.g.Go(func() error { return copyFile(p, target) })
		}
	}
	return nil
}

// copyFile copies a single regular file, refusing to overwrite. A symlinked
// src is read through.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// resolveParent evaluates symlinks in p's parent, which exists even when p
// itself has not been created yet.
func resolveParent(p string) string {
	parent, err := filepath.EvalSymlinks(filepath.Dir(p))
	if err != nil {
		return p
	}
	return filepath.Join(parent, filepath.Base(p))
}

// within reports whether p equals dir or lies beneath it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
