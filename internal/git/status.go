package git

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// HasChanges reports whether the working directory has uncommitted
// changes, staged or not, including untracked files.
func (c *Client) HasChanges(ctx context.Context, path string) (bool, error) {
	out, err := c.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// ChangedFiles lists paths with uncommitted changes.
func (c *Client) ChangedFiles(ctx context.Context, path string) ([]string, error) {
	out, err := c.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	files := make([]string, 0)
	for _, line := range splitLines(out) {
		// Porcelain v1: two status columns, a space, then the path.
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// AddAll stages all changes including untracked files.
func (c *Client) AddAll(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "add", "-A")
	return err
}

// Commit creates a commit with the given message and returns its hash.
func (c *Client) Commit(ctx context.Context, path, message string) (string, error) {
	if _, err := c.run(ctx, path, "commit", "-m", message); err != nil {
		return "", err
	}
	return c.run(ctx, path, "rev-parse", "HEAD")
}

// CommitMessage builds the fixed-template commit message for automated
// edits: a timestamp, and the task id when one is present.
func CommitMessage(task string, now time.Time) string {
	msg := fmt.Sprintf("forged: automated edit %s", now.UTC().Format(time.RFC3339))
	if task != "" {
		msg += fmt.Sprintf(" [%s]", task)
	}
	return msg
}
