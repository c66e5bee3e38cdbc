package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/logging"
)

// Manager creates and removes workspaces: a clone on disk plus its
// persisted record. Reads and updates go through the Store directly.
type Manager struct {
	store Store
	git   *git.Client
	root  string
	log   *logging.Logger
}

// NewManager creates a manager cloning under root.
func NewManager(store Store, gitClient *git.Client, root string, log *logging.Logger) *Manager {
	return &Manager{store: store, git: gitClient, root: root, log: log.Named("workspace")}
}

// Create clones repoURL into a fresh directory and persists the record.
// An empty targetBranch is resolved from the remote on first edit.
func (m *Manager) Create(ctx context.Context, repoURL, targetBranch string) (*Workspace, error) {
	if repoURL == "" {
		return nil, fmt.Errorf("repo url is required")
	}
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}

	id := NewID()
	path := filepath.Join(m.root, id)
	if err := m.git.Clone(ctx, repoURL, path); err != nil {
		return nil, fmt.Errorf("cloning %s: %w", repoURL, err)
	}

	head, err := git.HeadCommit(path)
	if err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("reading cloned HEAD: %w", err)
	}

	now := time.Now().UTC()
	ws := &Workspace{
		ID:           id,
		Path:         path,
		RepoURL:      repoURL,
		TargetBranch: targetBranch,
		CreatedAt:    now,
		LastAccessed: now,
		Metadata: Metadata{
			CommitHash: head,
			IsActive:   true,
		},
	}
	if err := m.store.Save(ctx, ws); err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("persisting workspace: %w", err)
	}

	m.log.Info(ctx, "workspace created",
		zap.String("workspace_id", id),
		zap.String("repo_url", repoURL))
	return ws, nil
}

// Remove deletes the working tree and the record.
func (m *Manager) Remove(ctx context.Context, id string) error {
	ws, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if ws.Path != "" {
		if err := os.RemoveAll(ws.Path); err != nil {
			return fmt.Errorf("removing work tree: %w", err)
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.log.Info(ctx, "workspace removed", zap.String("workspace_id", id))
	return nil
}
