// Package git wraps the git binary with stateless operations on a
// repository working directory.
//
// Every operation takes a context and the repository path; nothing in this
// package holds repository state between calls. Network operations (fetch,
// pull, push, ls-remote) go through the binary; purely local inspection
// (current branch, HEAD commit) uses go-git to avoid a subprocess.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const stderrExcerptLimit = 2048

// Client executes git operations against repository working directories.
type Client struct {
	bin     string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBinary overrides the git binary path.
func WithBinary(bin string) Option {
	return func(c *Client) { c.bin = bin }
}

// WithTimeout bounds each git subcommand. Zero disables the bound and
// leaves cancellation to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a git client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		bin:     "git",
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CommandError carries the failing subcommand and a bounded stderr excerpt.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// run executes a git subcommand in dir and returns trimmed stdout.
func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{
			Args:   args,
			Stderr: excerpt(stderr.String()),
			Err:    err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// excerpt bounds stderr so command failures never produce unbounded
// error payloads.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrExcerptLimit {
		return s[:stderrExcerptLimit] + "... (truncated)"
	}
	return s
}
