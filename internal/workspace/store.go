package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/forged/internal/git"
)

// Store persists workspace records.
type Store interface {
	// Load returns the workspace with the given id.
	Load(ctx context.Context, id string) (*Workspace, error)

	// Save persists a workspace record, creating or replacing it.
	Save(ctx context.Context, ws *Workspace) error

	// All returns every workspace record, sorted by id.
	All(ctx context.Context) ([]*Workspace, error)

	// Update applies fn to the stored record and persists the result.
	// fn sees the current persisted state; returning an error aborts
	// without writing.
	Update(ctx context.Context, id string, fn func(*Workspace) error) (*Workspace, error)

	// Delete removes a workspace record.
	Delete(ctx context.Context, id string) error
}

// FileStore stores one JSON file per workspace under a data directory,
// with an in-memory read-through cache.
type FileStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Workspace
}

// NewFileStore creates the data directory if needed and returns a store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating workspace data dir %s: %w", dir, err)
	}
	return &FileStore{
		dir:   dir,
		cache: make(map[string]*Workspace),
	}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load returns the workspace with the given id, from cache when possible.
func (s *FileStore) Load(ctx context.Context, id string) (*Workspace, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if ws, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return cloneWorkspace(ws), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; another goroutine may have filled it.
	if ws, ok := s.cache[id]; ok {
		return cloneWorkspace(ws), nil
	}

	ws, err := s.read(id)
	if err != nil {
		return nil, err
	}
	s.cache[id] = ws
	return cloneWorkspace(ws), nil
}

// Save persists a workspace record, creating or replacing it.
func (s *FileStore) Save(ctx context.Context, ws *Workspace) error {
	if err := ValidateID(ws.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ws); err != nil {
		return err
	}
	s.cache[ws.ID] = cloneWorkspace(ws)
	return nil
}

// All returns every workspace record, sorted by id. Reads go through the
// directory listing, not the cache, so records written by an earlier
// process generation are included.
func (s *FileStore) All(ctx context.Context) ([]*Workspace, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing workspace data dir: %w", err)
	}

	workspaces := make([]*Workspace, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		ws, err := s.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading workspace %s: %w", id, err)
		}
		workspaces = append(workspaces, ws)
	}

	sort.Slice(workspaces, func(i, j int) bool {
		return workspaces[i].ID < workspaces[j].ID
	})
	return workspaces, nil
}

// Update applies fn to the stored record and persists the result.
func (s *FileStore) Update(ctx context.Context, id string, fn func(*Workspace) error) (*Workspace, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.cache[id]
	if !ok {
		var err error
		ws, err = s.read(id)
		if err != nil {
			return nil, err
		}
	}

	updated := cloneWorkspace(ws)
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.ID = id // id is immutable
	updated.LastAccessed = time.Now().UTC()

	if err := s.write(updated); err != nil {
		return nil, err
	}
	s.cache[id] = cloneWorkspace(updated)
	return updated, nil
}

// Delete removes a workspace record.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("deleting workspace %s: %w", id, err)
	}
	return nil
}

// read loads a record from disk and verifies the active-worktree
// invariant: an active workspace whose path is no longer a git working
// directory is demoted to inactive rather than served as healthy.
func (s *FileStore) read(id string) (*Workspace, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading workspace %s: %w", id, err)
	}

	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("decoding workspace %s: %w", id, err)
	}

	if ws.Metadata.IsActive && !git.IsWorkTree(ws.Path) {
		ws.Metadata.IsActive = false
	}
	return &ws, nil
}

// write atomically persists a record (temp file + rename).
func (s *FileStore) write(ws *Workspace) error {
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding workspace %s: %w", ws.ID, err)
	}

	tmp := s.path(ws.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing workspace %s: %w", ws.ID, err)
	}
	if err := os.Rename(tmp, s.path(ws.ID)); err != nil {
		return fmt.Errorf("committing workspace %s: %w", ws.ID, err)
	}
	return nil
}

func cloneWorkspace(ws *Workspace) *Workspace {
	copied := *ws
	if ws.Metadata.Permissions != nil {
		perms := *ws.Metadata.Permissions
		copied.Metadata.Permissions = &perms
	}
	if ws.Metadata.Tags != nil {
		copied.Metadata.Tags = append([]string(nil), ws.Metadata.Tags...)
	}
	return &copied
}

var _ Store = (*FileStore)(nil)
