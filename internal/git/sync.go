package git

import (
	"context"
	"os"
	"path/filepath"
)

// Clone clones a repository into path.
func (c *Client) Clone(ctx context.Context, repoURL, path string) error {
	_, err := c.run(ctx, filepath.Dir(path), "clone", repoURL, path)
	return err
}

// Fetch updates remote-tracking refs from origin, pruning deleted branches.
func (c *Client) Fetch(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "fetch", "origin", "--prune")
	return err
}

// Pull fast-forwards the current branch from its remote tracking branch.
func (c *Client) Pull(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "pull", "--ff-only")
	return err
}

// Push pushes branch to origin, setting the upstream tracking branch.
func (c *Client) Push(ctx context.Context, path, branch string) error {
	_, err := c.run(ctx, path, "push", "-u", "origin", branch)
	return err
}

// ResetHard resets the working directory to ref, discarding local changes.
func (c *Client) ResetHard(ctx context.Context, path, ref string) error {
	_, err := c.run(ctx, path, "reset", "--hard", ref)
	return err
}

// Clean removes untracked files and directories. A crashed job can leave
// untracked output behind; reset --hard alone does not touch it.
func (c *Client) Clean(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "clean", "-fd")
	return err
}

// IsShallow reports whether the repository is a shallow clone.
func (c *Client) IsShallow(ctx context.Context, path string) (bool, error) {
	// rev-parse --is-shallow-repository needs git >= 2.15; reading the
	// marker file works everywhere and costs no subprocess.
	if _, err := os.Stat(filepath.Join(path, ".git", "shallow")); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return false, nil
}

// Unshallow converts a shallow clone into a full one. Shallow history
// breaks merge-base and push operations downstream, so workflows unshallow
// before any hard sync.
func (c *Client) Unshallow(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "fetch", "--unshallow", "origin")
	return err
}
