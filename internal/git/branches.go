package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoRemoteHead indicates the remote's default branch could not be
	// determined.
	ErrNoRemoteHead = errors.New("remote HEAD branch not found")
)

// Checkout switches the working directory to an existing branch.
func (c *Client) Checkout(ctx context.Context, path, branch string) error {
	_, err := c.run(ctx, path, "checkout", branch)
	return err
}

// CreateBranch creates a new branch at HEAD and switches to it.
func (c *Client) CreateBranch(ctx context.Context, path, branch string) error {
	_, err := c.run(ctx, path, "checkout", "-b", branch)
	return err
}

// DeleteBranch force-deletes a local branch.
func (c *Client) DeleteBranch(ctx context.Context, path, branch string) error {
	_, err := c.run(ctx, path, "branch", "-D", branch)
	return err
}

// LocalBranches lists local branch names.
func (c *Client) LocalBranches(ctx context.Context, path string) ([]string, error) {
	out, err := c.run(ctx, path, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// RemoteBranches lists branch names present on origin, with the
// origin/ prefix stripped.
func (c *Client) RemoteBranches(ctx context.Context, path string) ([]string, error) {
	out, err := c.run(ctx, path, "for-each-ref", "--format=%(refname:short)", "refs/remotes/origin")
	if err != nil {
		return nil, err
	}

	branches := make([]string, 0)
	for _, ref := range splitLines(out) {
		name := strings.TrimPrefix(ref, "origin/")
		if name == "HEAD" || name == "" {
			continue
		}
		branches = append(branches, name)
	}
	return branches, nil
}

// BranchExistsOnRemote reports whether branch exists on origin, checked
// against the remote itself rather than possibly stale remote-tracking refs.
func (c *Client) BranchExistsOnRemote(ctx context.Context, path, branch string) (bool, error) {
	out, err := c.run(ctx, path, "ls-remote", "--heads", "origin", branch)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RemoteHeadBranch resolves origin's default branch. It asks
// `git remote show origin` first, then probes main and master via
// ls-remote when the remote does not advertise a HEAD.
func (c *Client) RemoteHeadBranch(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, path, "remote", "show", "origin")
	if err == nil {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if rest, ok := strings.CutPrefix(line, "HEAD branch:"); ok {
				head := strings.TrimSpace(rest)
				if head != "" && head != "(unknown)" {
					return head, nil
				}
			}
		}
	}

	for _, candidate := range []string{"main", "master"} {
		exists, probeErr := c.BranchExistsOnRemote(ctx, path, candidate)
		if probeErr != nil {
			continue
		}
		if exists {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: remote show failed and neither main nor master exists", ErrNoRemoteHead)
}

func splitLines(out string) []string {
	if out == "" {
		return []string{}
	}
	lines := strings.Split(out, "\n")
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			result = append(result, l)
		}
	}
	return result
}
