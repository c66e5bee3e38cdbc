package gitflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/hosting"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// PostExecution records what finalization did. It is attached to the
// job result for polling clients.
type PostExecution struct {
	HasChanges      bool   `json:"hasChanges"`
	CommitHash      string `json:"commitHash,omitempty"`
	MergeRequestURL string `json:"mergeRequestUrl,omitempty"`
	PushedBranch    string `json:"pushedBranch,omitempty"`
}

// ProviderDetector resolves a hosting provider for a repository URL.
type ProviderDetector interface {
	Detect(repoURL string) (hosting.Provider, error)
}

// Finalizer converts an edit run's filesystem changes into a commit, a
// push, and optionally a merge request.
type Finalizer struct {
	git      *git.Client
	detector ProviderDetector
	log      *logging.Logger
	now      func() time.Time
}

// NewFinalizer creates a finalizer. detector may be nil when no hosting
// token is configured; merge requests are then skipped with a warning.
func NewFinalizer(gitClient *git.Client, detector ProviderDetector, log *logging.Logger) *Finalizer {
	return &Finalizer{git: gitClient, detector: detector, log: log.Named("gitflow"), now: time.Now}
}

// Finalize stages, commits, and pushes the run's changes. Stage, commit,
// and push are hard gates: any failure aborts with an error and nothing
// is retried. A merge-request failure after a successful push is only a
// warning; the commit and push are durable progress and the branch is
// left in place for manual follow-up.
func (f *Finalizer) Finalize(ctx context.Context, ws *workspace.Workspace, res *Result, task string) (*PostExecution, error) {
	changed, err := f.git.HasChanges(ctx, ws.Path)
	if err != nil {
		return nil, fmt.Errorf("checking for changes: %w", err)
	}
	if !changed {
		f.log.Info(ctx, "no changes to finalize", zap.String("branch", res.SourceBranch))
		return &PostExecution{HasChanges: false}, nil
	}

	if err := f.git.AddAll(ctx, ws.Path); err != nil {
		return nil, fmt.Errorf("staging changes: %w", err)
	}
	hash, err := f.git.Commit(ctx, ws.Path, git.CommitMessage(task, f.now()))
	if err != nil {
		return nil, fmt.Errorf("committing changes: %w", err)
	}
	if err := f.git.Push(ctx, ws.Path, res.SourceBranch); err != nil {
		return nil, fmt.Errorf("pushing branch %q: %w", res.SourceBranch, err)
	}

	pe := &PostExecution{
		HasChanges:   true,
		CommitHash:   hash,
		PushedBranch: res.SourceBranch,
	}
	f.log.Info(ctx, "pushed changes",
		zap.String("branch", res.SourceBranch),
		zap.String("commit", hash))

	if res.MergeRequestRequired {
		if url := f.openMergeRequest(ctx, ws, res, task); url != "" {
			pe.MergeRequestURL = url
		}
	}
	return pe, nil
}

func (f *Finalizer) openMergeRequest(ctx context.Context, ws *workspace.Workspace, res *Result, task string) string {
	if f.detector == nil {
		f.log.Warn(ctx, "merge request requested but no hosting provider configured",
			zap.String("branch", res.SourceBranch))
		return ""
	}

	provider, err := f.detector.Detect(ws.RepoURL)
	if err != nil {
		f.log.Warn(ctx, "merge request skipped", zap.Error(err))
		return ""
	}

	mr, err := provider.CreateMergeRequest(ctx, hosting.MergeRequestSpec{
		RepoURL:      ws.RepoURL,
		SourceBranch: res.SourceBranch,
		TargetBranch: res.TargetBranch,
		Title:        mergeRequestTitle(task, f.now()),
		Description: fmt.Sprintf("Automated changes from branch `%s` targeting `%s`.",
			res.SourceBranch, res.TargetBranch),
	})
	if err != nil {
		f.log.Warn(ctx, "merge request creation failed, branch left in place",
			zap.String("branch", res.SourceBranch),
			zap.Error(err))
		return ""
	}

	f.log.Info(ctx, "opened merge request",
		zap.String("url", mr.WebURL),
		zap.Int("number", mr.Number))
	return mr.WebURL
}

func mergeRequestTitle(task string, now time.Time) string {
	if task != "" {
		return fmt.Sprintf("Automated edit: %s", task)
	}
	return fmt.Sprintf("Automated edit %s", now.UTC().Format("2006-01-02 15:04"))
}
