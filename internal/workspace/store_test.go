package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testWorkspace(id string) *Workspace {
	return &Workspace{
		ID:           id,
		Path:         "/tmp/does-not-matter",
		RepoURL:      "https://github.com/acme/widgets.git",
		TargetBranch: "main",
		CreatedAt:    time.Now().UTC(),
		Metadata:     Metadata{CommitHash: "abc123"},
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ws := testWorkspace("ws-1")
	require.NoError(t, store.Save(ctx, ws))

	loaded, err := store.Load(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, ws.RepoURL, loaded.RepoURL)
	assert.Equal(t, "main", loaded.TargetBranch)
	assert.Equal(t, "abc123", loaded.Metadata.CommitHash)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testWorkspace("ws-1")))

	updated, err := store.Update(ctx, "ws-1", func(ws *Workspace) error {
		ws.Metadata.CommitHash = "def456"
		ws.TargetBranch = "develop"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "def456", updated.Metadata.CommitHash)
	assert.False(t, updated.LastAccessed.IsZero())

	// The mutation is durable, not just cached.
	store2, err := NewFileStore(store.dir)
	require.NoError(t, err)
	loaded, err := store2.Load(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "def456", loaded.Metadata.CommitHash)
	assert.Equal(t, "develop", loaded.TargetBranch)
}

func TestFileStore_UpdateAborts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testWorkspace("ws-1")))

	_, err := store.Update(ctx, "ws-1", func(ws *Workspace) error {
		ws.Metadata.CommitHash = "should-not-persist"
		return assert.AnError
	})
	require.Error(t, err)

	loaded, err := store.Load(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.Metadata.CommitHash)
}

func TestFileStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testWorkspace("ws-1")))
	require.NoError(t, store.Delete(ctx, "ws-1"))

	_, err := store.Load(ctx, "ws-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "ws-1"), ErrNotFound)
}

func TestFileStore_All(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testWorkspace("ws-b")))
	require.NoError(t, store.Save(ctx, testWorkspace("ws-a")))

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ws-a", all[0].ID)
	assert.Equal(t, "ws-b", all[1].ID)
}

func TestFileStore_CacheReturnsCopies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testWorkspace("ws-1")))

	first, err := store.Load(ctx, "ws-1")
	require.NoError(t, err)
	first.Metadata.CommitHash = "mutated-by-caller"

	second, err := store.Load(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", second.Metadata.CommitHash)
}

func TestFileStore_ActiveInvariant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ws := testWorkspace("ws-1")
	ws.Path = filepath.Join(t.TempDir(), "not-a-repo")
	require.NoError(t, os.MkdirAll(ws.Path, 0755))
	ws.Metadata.IsActive = true
	require.NoError(t, store.Save(ctx, ws))

	// Force a disk read so the invariant check runs.
	store2, err := NewFileStore(store.dir)
	require.NoError(t, err)
	loaded, err := store2.Load(ctx, "ws-1")
	require.NoError(t, err)
	assert.False(t, loaded.Metadata.IsActive, "active workspace without a work tree must be demoted")
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("ws-1"))
	assert.NoError(t, ValidateID(NewID()))
	assert.ErrorIs(t, ValidateID(""), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("../escape"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("a/b"), ErrInvalidID)
}
