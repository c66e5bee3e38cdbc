package claude

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/fyrsmithlabs/forged/internal/logging"
)

// noOutput is reported when the process exits cleanly without producing
// anything on stdout or stderr. A zero-output success is not a failure.
const noOutput = "command completed successfully but produced no output"

// editBoundary is appended to edit prompts. Edits run with permission
// checks bypassed, so the boundary has to be stated in the prompt itself.
const editBoundary = "Only create, modify, or delete files inside the current " +
	"working directory. Never touch files outside this repository checkout."

// Request describes one invocation against a prepared workspace.
type Request struct {
	Question         string
	Context          string
	WorkingDirectory string
	EditRequest      bool
	SourceBranch     string
}

// Usage carries the token and cost accounting from the terminal result
// event, when the CLI reported one.
type Usage struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheCreationInputTokens int     `json:"cacheCreationInputTokens,omitempty"`
	CacheReadInputTokens     int     `json:"cacheReadInputTokens,omitempty"`
	CostUSD                  float64 `json:"costUsd,omitempty"`
}

// Result is the normalized outcome of a successful run.
type Result struct {
	Output    string     `json:"output"`
	JSONLogs  []LogEntry `json:"jsonLogs,omitempty"`
	RawOutput string     `json:"rawOutput,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// TimeoutError reports a process killed for inactivity. The idle duration
// is how long the process went without emitting a single byte.
type TimeoutError struct {
	Idle time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process killed after %s of inactivity", e.Idle.Round(time.Second))
}

// ExitError reports a non-zero process exit. The exit code is
// authoritative: output collected before the failure is discarded.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("process exited with code %d", e.Code)
	}
	return fmt.Sprintf("process exited with code %d: %s", e.Code, e.Stderr)
}

// Runner executes requests through the configured CLI binary.
type Runner struct {
	cfg config.ClaudeConfig
	log *logging.Logger
}

// NewRunner creates a runner. The logger must not be nil.
func NewRunner(cfg config.ClaudeConfig, log *logging.Logger) *Runner {
	return &Runner{cfg: cfg, log: log.Named("claude")}
}

// Run executes one request and blocks until the subprocess exits or is
// killed. The timeout is activity-based: the idle timer resets on every
// stdout/stderr chunk, and only sustained silence kills the process.
// Cancelling ctx also kills the process.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("question must not be empty")
	}
	if req.WorkingDirectory == "" {
		return nil, errors.New("working directory must not be empty")
	}

	cmd := exec.Command(r.cfg.Binary, buildArgs(req)...) //nolint:gosec // binary comes from validated config
	cmd.Dir = req.WorkingDirectory
	cmd.Env = append(os.Environ(), "TERM=dumb", "NO_COLOR=1")
	if r.cfg.APIKey.IsSet() {
		cmd.Env = append(cmd.Env, "ANTHROPIC_API_KEY="+r.cfg.APIKey.Value())
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.cfg.Binary, err)
	}

	r.log.Debug(ctx, "started process",
		zap.String("binary", r.cfg.Binary),
		zap.Bool("edit", req.EditRequest),
		zap.String("dir", req.WorkingDirectory))

	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())
	touch := func() { lastActivity.Store(time.Now().UnixNano()) }

	var killOnce sync.Once
	kill := func() { killOnce.Do(func() { _ = cmd.Process.Kill() }) }

	var timedOut atomic.Bool
	var idleAtKill atomic.Int64

	ceiling := r.cfg.IdleTimeout.Duration()
	if !req.EditRequest {
		ceiling = r.cfg.AskIdleTimeout.Duration()
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.ActivityCheck.Duration())
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				kill()
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastActivity.Load()))
				if idle >= ceiling {
					timedOut.Store(true)
					idleAtKill.Store(int64(idle))
					r.log.Warn(ctx, "killing idle process",
						zap.Duration("idle", idle),
						zap.Duration("ceiling", ceiling))
					kill()
					return
				}
			}
		}
	}()

	col := newCollector(ctx, r.log)
	errBuf := newCappedBuffer(r.cfg.StderrPreviewKB * 1024)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		col.readStdout(stdout, touch)
	}()
	go func() {
		defer wg.Done()
		drain(stderr, errBuf, touch)
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	close(done)

	if timedOut.Load() {
		return nil, &TimeoutError{Idle: time.Duration(idleAtKill.Load())}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &ExitError{Code: code, Stderr: errBuf.Excerpt()}
	}

	result := col.result(errBuf.String())
	if result.Usage != nil {
		r.log.Info(ctx, "run complete",
			zap.Int("input_tokens", result.Usage.InputTokens),
			zap.Int("output_tokens", result.Usage.OutputTokens),
			zap.Float64("cost_usd", result.Usage.CostUSD))
	} else {
		r.log.Info(ctx, "run complete", zap.Int("output_bytes", len(result.Output)))
	}
	return result, nil
}

// buildArgs assembles the CLI argument list. Permission bypass is granted
// only to edit requests; read-only asks keep the default sandbox.
func buildArgs(req Request) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if req.EditRequest {
		args = append(args, "--dangerously-skip-permissions")
	}
	return append(args, buildPrompt(req))
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Question)
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("\n\nAdditional context:\n")
		b.WriteString(ctx)
	}
	if req.EditRequest {
		b.WriteString("\n\n")
		b.WriteString(editBoundary)
	}
	return b.String()
}

// drain copies r into buf in chunks, touching the activity timer on every
// chunk so a chatty stderr keeps the process alive.
func drain(r io.Reader, buf *cappedBuffer, touch func()) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			touch()
			_, _ = buf.Write(chunk[:n])
		}
		if err != nil {
			return
		}
	}
}
