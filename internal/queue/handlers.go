package queue

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/claude"
	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/gitflow"
	"github.com/fyrsmithlabs/forged/internal/hosting"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// Runner is the executor surface the claude-code handler needs.
type Runner interface {
	Run(ctx context.Context, req claude.Request) (*claude.Result, error)
}

// Handlers builds the HandlerFuncs for every job type from the shared
// components. detector may be nil when no hosting token is configured.
type Handlers struct {
	store     workspace.Store
	git       *git.Client
	engine    *gitflow.Engine
	finalizer *gitflow.Finalizer
	runner    Runner
	detector  gitflow.ProviderDetector
	log       *logging.Logger
}

func NewHandlers(
	store workspace.Store,
	gitClient *git.Client,
	engine *gitflow.Engine,
	finalizer *gitflow.Finalizer,
	runner Runner,
	detector gitflow.ProviderDetector,
	log *logging.Logger,
) *Handlers {
	return &Handlers{
		store:     store,
		git:       gitClient,
		engine:    engine,
		finalizer: finalizer,
		runner:    runner,
		detector:  detector,
		log:       log.Named("handlers"),
	}
}

// RegisterAll wires every job type into the queue.
func (h *Handlers) RegisterAll(q *Queue) {
	q.Register(TypeClaudeCode, h.ClaudeCode)
	q.Register(TypeGitPush, h.GitPush)
	q.Register(TypeGitMR, h.GitMR)
	q.Register(TypeWorkspaceCleanup, h.WorkspaceCleanup)
}

// ClaudeCode runs the full ask/edit flow: branch preparation or switch,
// CLI execution, and for edits, finalization plus restoring the
// workspace to its target branch with the new HEAD recorded.
func (h *Handlers) ClaudeCode(ctx context.Context, payload Payload) (*Result, error) {
	ctx = logging.WithWorkspaceID(ctx, payload.WorkspaceID)
	ws, err := h.store.Load(ctx, payload.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}

	var gitInit *gitflow.Result
	if payload.EditRequest {
		gitInit, err = h.engine.Initialize(ctx, ws, gitflow.Options{
			SourceBranch: payload.SourceBranch,
			CreateMR:     payload.CreateMR,
			TaskID:       payload.TaskID,
		})
		if err != nil {
			return nil, fmt.Errorf("preparing git workflow: %w", err)
		}
	} else if payload.SourceBranch != "" {
		if err := h.switchBranch(ctx, ws, payload.SourceBranch); err != nil {
			return nil, err
		}
	}

	runRes, err := h.runner.Run(ctx, claude.Request{
		Question:         payload.Question,
		Context:          payload.Context,
		WorkingDirectory: ws.Path,
		EditRequest:      payload.EditRequest,
		SourceBranch:     payload.SourceBranch,
	})
	if err != nil {
		// The prepared isolation branch is left in place for inspection.
		return nil, fmt.Errorf("executing request: %w", err)
	}

	result := &Result{
		Output:    runRes.Output,
		GitInit:   gitInit,
		Usage:     runRes.Usage,
		JSONLogs:  runRes.JSONLogs,
		RawOutput: runRes.RawOutput,
	}

	if payload.EditRequest {
		pe, err := h.finalizer.Finalize(ctx, ws, gitInit, payload.TaskID)
		if err != nil {
			return nil, fmt.Errorf("finalizing changes: %w", err)
		}
		result.PostExecution = pe

		if err := h.restoreTargetBranch(ctx, ws, gitInit.TargetBranch); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// switchBranch validates and checks out an explicitly requested branch
// for a read-only ask, then pulls its latest state.
func (h *Handlers) switchBranch(ctx context.Context, ws *workspace.Workspace, branch string) error {
	exists, err := h.git.BranchExistsOnRemote(ctx, ws.Path, branch)
	if err != nil {
		return fmt.Errorf("checking branch %q: %w", branch, err)
	}
	if !exists {
		return fmt.Errorf("branch %q does not exist on the remote", branch)
	}
	if err := h.git.Checkout(ctx, ws.Path, branch); err != nil {
		return fmt.Errorf("switching to branch %q: %w", branch, err)
	}
	if err := h.git.Pull(ctx, ws.Path); err != nil {
		return fmt.Errorf("pulling branch %q: %w", branch, err)
	}
	return nil
}

// restoreTargetBranch puts the workspace back on its target branch,
// re-syncs it, and persists the new HEAD so later asks see the merged
// state instead of the abandoned isolation branch.
func (h *Handlers) restoreTargetBranch(ctx context.Context, ws *workspace.Workspace, target string) error {
	if err := h.git.Checkout(ctx, ws.Path, target); err != nil {
		return fmt.Errorf("returning to target branch %q: %w", target, err)
	}
	if err := h.git.Fetch(ctx, ws.Path); err != nil {
		return fmt.Errorf("fetching after edit: %w", err)
	}
	if err := h.git.ResetHard(ctx, ws.Path, "origin/"+target); err != nil {
		return fmt.Errorf("re-syncing target branch %q: %w", target, err)
	}

	head, err := git.HeadCommit(ws.Path)
	if err != nil {
		return fmt.Errorf("reading HEAD after edit: %w", err)
	}
	if _, err := h.store.Update(ctx, ws.ID, func(w *workspace.Workspace) error {
		w.Metadata.CommitHash = head
		return nil
	}); err != nil {
		return fmt.Errorf("recording commit hash: %w", err)
	}

	h.log.Debug(ctx, "workspace restored to target branch",
		zap.String("target", target),
		zap.String("commit", head))
	return nil
}

// GitPush pushes a branch without running the CLI. An empty
// sourceBranch pushes the branch currently checked out.
func (h *Handlers) GitPush(ctx context.Context, payload Payload) (*Result, error) {
	ws, err := h.store.Load(ctx, payload.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}

	branch := payload.SourceBranch
	if branch == "" {
		branch, err = git.CurrentBranch(ws.Path)
		if err != nil {
			return nil, fmt.Errorf("reading current branch: %w", err)
		}
	}
	if err := h.git.Push(ctx, ws.Path, branch); err != nil {
		return nil, fmt.Errorf("pushing branch %q: %w", branch, err)
	}

	return &Result{
		Output:        fmt.Sprintf("pushed branch %s", branch),
		PostExecution: &gitflow.PostExecution{HasChanges: true, PushedBranch: branch},
	}, nil
}

// GitMR opens a merge request for an already pushed branch.
func (h *Handlers) GitMR(ctx context.Context, payload Payload) (*Result, error) {
	ws, err := h.store.Load(ctx, payload.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	if h.detector == nil {
		return nil, fmt.Errorf("no hosting provider configured")
	}
	provider, err := h.detector.Detect(ws.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("detecting hosting provider: %w", err)
	}

	target := ws.TargetBranch
	if target == "" {
		target, err = h.git.RemoteHeadBranch(ctx, ws.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving target branch: %w", err)
		}
	}

	mr, err := provider.CreateMergeRequest(ctx, hosting.MergeRequestSpec{
		RepoURL:      ws.RepoURL,
		SourceBranch: payload.SourceBranch,
		TargetBranch: target,
		Title:        fmt.Sprintf("Merge %s into %s", payload.SourceBranch, target),
		Description:  fmt.Sprintf("Requested merge of branch `%s` into `%s`.", payload.SourceBranch, target),
	})
	if err != nil {
		return nil, fmt.Errorf("creating merge request: %w", err)
	}

	return &Result{
		Output:        mr.WebURL,
		PostExecution: &gitflow.PostExecution{HasChanges: true, MergeRequestURL: mr.WebURL, PushedBranch: payload.SourceBranch},
	}, nil
}

// WorkspaceCleanup deletes the working tree and the workspace record.
func (h *Handlers) WorkspaceCleanup(ctx context.Context, payload Payload) (*Result, error) {
	ws, err := h.store.Load(ctx, payload.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	if ws.Path != "" {
		if err := os.RemoveAll(ws.Path); err != nil {
			return nil, fmt.Errorf("removing work tree: %w", err)
		}
	}
	if err := h.store.Delete(ctx, ws.ID); err != nil {
		return nil, fmt.Errorf("deleting workspace record: %w", err)
	}
	h.log.Info(ctx, "workspace removed", zap.String("workspace_id", ws.ID))
	return &Result{Output: fmt.Sprintf("workspace %s removed", ws.ID)}, nil
}
