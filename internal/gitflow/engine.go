package gitflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// Options controls branch preparation for one edit job.
type Options struct {
	// SourceBranch, when set and different from the target branch,
	// selects direct-to-branch mode: work lands on this existing branch
	// with no merge request.
	SourceBranch string
	// CreateMR opts into opening a merge request for isolation-branch
	// work. It never forces one for direct-to-branch work.
	CreateMR bool
	// TaskID names the isolation branch when present.
	TaskID string
}

// Result describes the prepared branch topology. It lives only for the
// duration of the job that produced it.
type Result struct {
	MergeRequestRequired bool   `json:"mergeRequestRequired"`
	SourceBranch         string `json:"sourceBranch"`
	TargetBranch         string `json:"targetBranch"`
}

// Engine prepares a workspace's branch state before an edit run. Any git
// failure aborts preparation; callers must not execute against a
// workspace the engine did not fully prepare.
type Engine struct {
	git   *git.Client
	store workspace.Store
	log   *logging.Logger
	now   func() time.Time
}

// NewEngine creates an engine. The store is used to persist a target
// branch resolved from the remote when the workspace has none recorded.
func NewEngine(gitClient *git.Client, store workspace.Store, log *logging.Logger) *Engine {
	return &Engine{git: gitClient, store: store, log: log.Named("gitflow"), now: time.Now}
}

// Initialize runs the branch preparation state machine.
//
// Without an explicit differing source branch: hard-sync the target
// branch with its remote, delete stale local branches, then create and
// switch to a fresh isolation branch. With one: switch to that branch
// and pull. A crash in a previous job can leave the workspace on an
// abandoned isolation branch; the hard sync here repairs that rather
// than assuming a clean start.
func (e *Engine) Initialize(ctx context.Context, ws *workspace.Workspace, opts Options) (*Result, error) {
	target, err := e.resolveTargetBranch(ctx, ws)
	if err != nil {
		return nil, err
	}

	if opts.SourceBranch != "" && opts.SourceBranch != target {
		if err := e.git.Checkout(ctx, ws.Path, opts.SourceBranch); err != nil {
			return nil, fmt.Errorf("switching to branch %q: %w", opts.SourceBranch, err)
		}
		if err := e.git.Pull(ctx, ws.Path); err != nil {
			return nil, fmt.Errorf("pulling branch %q: %w", opts.SourceBranch, err)
		}
		e.log.Info(ctx, "prepared direct-to-branch workflow",
			zap.String("source", opts.SourceBranch),
			zap.String("target", target))
		return &Result{
			MergeRequestRequired: false,
			SourceBranch:         opts.SourceBranch,
			TargetBranch:         target,
		}, nil
	}

	if err := e.syncTargetBranch(ctx, ws.Path, target); err != nil {
		return nil, err
	}
	if err := e.cleanBranches(ctx, ws.Path, target); err != nil {
		return nil, err
	}

	iso := isolationBranch(opts.TaskID, target, e.now())
	if err := e.git.CreateBranch(ctx, ws.Path, iso); err != nil {
		return nil, fmt.Errorf("creating isolation branch %q: %w", iso, err)
	}

	e.log.Info(ctx, "prepared isolation workflow",
		zap.String("source", iso),
		zap.String("target", target),
		zap.Bool("merge_request", opts.CreateMR))
	return &Result{
		MergeRequestRequired: opts.CreateMR,
		SourceBranch:         iso,
		TargetBranch:         target,
	}, nil
}

// resolveTargetBranch returns the workspace's recorded target branch, or
// resolves it from the remote's HEAD and persists the answer so later
// jobs skip the lookup.
func (e *Engine) resolveTargetBranch(ctx context.Context, ws *workspace.Workspace) (string, error) {
	if ws.TargetBranch != "" {
		return ws.TargetBranch, nil
	}

	target, err := e.git.RemoteHeadBranch(ctx, ws.Path)
	if err != nil {
		return "", fmt.Errorf("resolving target branch: %w", err)
	}

	updated, err := e.store.Update(ctx, ws.ID, func(w *workspace.Workspace) error {
		w.TargetBranch = target
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("recording target branch: %w", err)
	}
	*ws = *updated

	e.log.Debug(ctx, "resolved target branch from remote", zap.String("target", target))
	return target, nil
}

// syncTargetBranch puts the working directory exactly on the remote's
// view of the target branch. Unshallowing happens before the fetch
// because a shallow history breaks later push and merge-base work.
func (e *Engine) syncTargetBranch(ctx context.Context, path, target string) error {
	shallow, err := e.git.IsShallow(ctx, path)
	if err != nil {
		return fmt.Errorf("checking shallow state: %w", err)
	}
	if shallow {
		if err := e.git.Unshallow(ctx, path); err != nil {
			return fmt.Errorf("unshallowing: %w", err)
		}
	}
	if err := e.git.Fetch(ctx, path); err != nil {
		return fmt.Errorf("fetching: %w", err)
	}
	if err := e.git.Checkout(ctx, path, target); err != nil {
		return fmt.Errorf("switching to target branch %q: %w", target, err)
	}
	if err := e.git.ResetHard(ctx, path, "origin/"+target); err != nil {
		return fmt.Errorf("hard-syncing %q: %w", target, err)
	}
	if err := e.git.Clean(ctx, path); err != nil {
		return fmt.Errorf("cleaning work tree: %w", err)
	}
	return nil
}

// cleanBranches force-deletes local branches left over from previous
// edit cycles. A branch survives when it is the current branch, the
// target branch, or still exists on the remote.
func (e *Engine) cleanBranches(ctx context.Context, path, target string) error {
	locals, err := e.git.LocalBranches(ctx, path)
	if err != nil {
		return fmt.Errorf("listing local branches: %w", err)
	}
	remotes, err := e.git.RemoteBranches(ctx, path)
	if err != nil {
		return fmt.Errorf("listing remote branches: %w", err)
	}
	current, err := git.CurrentBranch(path)
	if err != nil {
		return fmt.Errorf("reading current branch: %w", err)
	}

	onRemote := make(map[string]bool, len(remotes))
	for _, b := range remotes {
		onRemote[b] = true
	}

	for _, b := range locals {
		if b == current || b == target || onRemote[b] {
			continue
		}
		if err := e.git.DeleteBranch(ctx, path, b); err != nil {
			return fmt.Errorf("deleting stale branch %q: %w", b, err)
		}
		e.log.Debug(ctx, "deleted stale branch", zap.String("branch", b))
	}
	return nil
}

func isolationBranch(taskID, source string, now time.Time) string {
	if taskID != "" {
		return taskID
	}
	return fmt.Sprintf("%s-%d", source, now.UnixMilli())
}
