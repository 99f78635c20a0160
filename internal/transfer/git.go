// Package transfer materializes model content in the shared directory,
// either by cloning a remote repository or by copying a local tree.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Cloner produces a full, non-interactive working copy of url at dest.
// dest is either absent or an empty directory.
type Cloner interface {
	Clone(ctx context.Context, url, dest string) error
}

// GitCloner implements Cloner with the git command-line client.
type GitCloner struct {
	Binary string // path to git; looked up on PATH when empty
}

// NewGitCloner returns a cloner using binary, or "git" from PATH.
func NewGitCloner(binary string) *GitCloner {
	if binary == "" {
		binary = "git"
	}
	return &GitCloner{Binary: binary}
}

// Clone runs `git clone` with prompts disabled so that a missing credential
// fails fast instead of blocking.
func (g *GitCloner) Clone(ctx context.Context, url, dest string) error {
	args := []string{"clone", "--quiet", "--", url, dest}
	cmd := exec.CommandContext(ctx, g.Binary, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=")

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", ctxErr, err)
		}
		return newGitError(args, string(output), err)
	}
	return nil
}

// GitError carries the diagnostic of a failed git invocation.
type GitError struct {
	ExitCode int
	Stderr   string
	Args     []string
	err      error
}

func newGitError(args []string, stderr string, err error) *GitError {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &GitError{ExitCode: exitCode, Stderr: stderr, Args: args, err: err}
}

func (e *GitError) Error() string {
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return fmt.Sprintf("git %s: %s", e.Args[0], s)
	}
	return fmt.Sprintf("git %s: %v", e.Args[0], e.err)
}

func (e *GitError) Unwrap() error {
	return e.err
}
