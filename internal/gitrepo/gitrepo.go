// Package gitrepo fetches remote repositories into local directories.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrClone marks failures of the clone operation itself (bad URL, network,
// auth). Callers distinguish it from local filesystem errors with
// errors.Is.
var ErrClone = errors.New("clone failed")

// Cloner fetches a remote repository into a local directory.
type Cloner interface {
	// Clone fetches url into target. Any pre-existing contents at target
	// are deleted first; a clone is never additive or resumable. Single
	// attempt, no retries.
	Clone(ctx context.Context, url, target string) error
}

// ExecCloner implements Cloner by shelling out to git.
type ExecCloner struct{}

// NewCloner returns a new ExecCloner.
func NewCloner() *ExecCloner {
	return &ExecCloner{}
}

func (c *ExecCloner) Clone(ctx context.Context, url, target string) error {
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove existing clone target: %w", err)
	}

	out, err := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, target).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: git clone %s: %s", ErrClone, url, msg)
	}
	return nil
}

// RepoName derives a directory-safe name from a repository URL, used for
// naming the flattened codebase file.
func RepoName(url string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "repository"
	}
	return name
}
