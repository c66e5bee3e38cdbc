package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/logging"
)

func sourceRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# src\n"), 0644))
	for _, args := range [][]string{{"add", "-A"}, {"commit", "-m", "initial"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	return dir
}

func TestManagerCreateAndRemove(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	src := sourceRepo(t)

	m := NewManager(store, git.NewClient(), filepath.Join(t.TempDir(), "workspaces"), logging.NewTestLogger().Logger)

	ws, err := m.Create(context.Background(), src, "main")
	require.NoError(t, err)
	assert.NotEmpty(t, ws.ID)
	assert.Equal(t, "main", ws.TargetBranch)
	assert.NotEmpty(t, ws.Metadata.CommitHash)
	assert.True(t, ws.Metadata.IsActive)
	assert.DirExists(t, filepath.Join(ws.Path, ".git"))

	loaded, err := store.Load(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Equal(t, ws.Metadata.CommitHash, loaded.Metadata.CommitHash)

	require.NoError(t, m.Remove(context.Background(), ws.ID))
	_, err = store.Load(context.Background(), ws.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(ws.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestManagerCreate_BadRepo(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store, git.NewClient(), filepath.Join(t.TempDir(), "workspaces"), logging.NewTestLogger().Logger)

	_, err = m.Create(context.Background(), "", "")
	assert.Error(t, err)

	if _, lookErr := exec.LookPath("git"); lookErr == nil {
		_, err = m.Create(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), "")
		assert.Error(t, err)
	}
}
