package gitflow

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/hosting"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// testWorkspace creates a bare origin, a clone of it, and a workspace
// record persisted in a fresh file store.
func testWorkspace(t *testing.T, targetBranch string) (*workspace.Workspace, workspace.Store, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	src := t.TempDir()
	mustGit(t, src, "init", "-b", "main")
	mustGit(t, src, "config", "user.email", "test@example.com")
	mustGit(t, src, "config", "user.name", "test")
	writeFile(t, src, "README.md", "# test\n")
	mustGit(t, src, "add", "-A")
	mustGit(t, src, "commit", "-m", "initial")

	bare := filepath.Join(t.TempDir(), "origin.git")
	mustGit(t, src, "clone", "--bare", src, bare)

	clone := filepath.Join(t.TempDir(), "clone")
	mustGit(t, src, "clone", bare, clone)
	mustGit(t, clone, "config", "user.email", "test@example.com")
	mustGit(t, clone, "config", "user.name", "test")

	store, err := workspace.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ws := &workspace.Workspace{
		ID:           workspace.NewID(),
		Path:         clone,
		RepoURL:      "https://github.com/acme/widgets.git",
		TargetBranch: targetBranch,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Save(context.Background(), ws))
	return ws, store, bare
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newTestEngine(store workspace.Store) *Engine {
	return NewEngine(git.NewClient(), store, logging.NewTestLogger().Logger)
}

func TestInitialize_IsolationBranchWithTaskID(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)

	res, err := e.Initialize(context.Background(), ws, Options{CreateMR: true, TaskID: "task-42"})
	require.NoError(t, err)

	assert.True(t, res.MergeRequestRequired)
	assert.Equal(t, "task-42", res.SourceBranch)
	assert.Equal(t, "main", res.TargetBranch)

	current, err := git.CurrentBranch(ws.Path)
	require.NoError(t, err)
	assert.Equal(t, "task-42", current)
}

func TestInitialize_GeneratedBranchName(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)

	res, err := e.Initialize(context.Background(), ws, Options{CreateMR: true})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^main-\d+$`), res.SourceBranch)
}

func TestInitialize_CreateMROptOut(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)

	// Isolation workflow still happens, but no merge request is owed.
	res, err := e.Initialize(context.Background(), ws, Options{CreateMR: false, TaskID: "quiet"})
	require.NoError(t, err)
	assert.False(t, res.MergeRequestRequired)
	assert.Equal(t, "quiet", res.SourceBranch)
}

func TestInitialize_CleansStaleBranches(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")

	// A leftover local-only branch and a branch that exists on the remote.
	mustGit(t, ws.Path, "branch", "stale-edit")
	mustGit(t, ws.Path, "checkout", "-b", "feature")
	mustGit(t, ws.Path, "push", "-u", "origin", "feature")
	mustGit(t, ws.Path, "checkout", "main")

	e := newTestEngine(store)
	_, err := e.Initialize(context.Background(), ws, Options{TaskID: "next"})
	require.NoError(t, err)

	branches, err := git.NewClient().LocalBranches(context.Background(), ws.Path)
	require.NoError(t, err)
	assert.NotContains(t, branches, "stale-edit")
	assert.Contains(t, branches, "feature")
	assert.Contains(t, branches, "main")
}

func TestInitialize_DirectToBranch(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")

	mustGit(t, ws.Path, "checkout", "-b", "feature")
	mustGit(t, ws.Path, "push", "-u", "origin", "feature")
	mustGit(t, ws.Path, "checkout", "main")

	e := newTestEngine(store)
	res, err := e.Initialize(context.Background(), ws, Options{SourceBranch: "feature", CreateMR: true})
	require.NoError(t, err)

	// Direct pushes to an existing branch never imply a merge request.
	assert.False(t, res.MergeRequestRequired)
	assert.Equal(t, "feature", res.SourceBranch)
	assert.Equal(t, "main", res.TargetBranch)

	current, err := git.CurrentBranch(ws.Path)
	require.NoError(t, err)
	assert.Equal(t, "feature", current)
}

func TestInitialize_ResolvesAndPersistsTargetBranch(t *testing.T) {
	ws, store, _ := testWorkspace(t, "")
	e := newTestEngine(store)

	res, err := e.Initialize(context.Background(), ws, Options{TaskID: "resolve"})
	require.NoError(t, err)
	assert.Equal(t, "main", res.TargetBranch)

	stored, err := store.Load(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", stored.TargetBranch)
}

func TestInitialize_RepairsAbandonedIsolationBranch(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)

	// Simulate a crash that left the workspace on a dirty isolation branch.
	mustGit(t, ws.Path, "checkout", "-b", "crashed-123")
	writeFile(t, ws.Path, "junk.txt", "leftover\n")

	res, err := e.Initialize(context.Background(), ws, Options{TaskID: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.SourceBranch)

	branches, err := git.NewClient().LocalBranches(context.Background(), ws.Path)
	require.NoError(t, err)
	assert.NotContains(t, branches, "crashed-123")

	_, err = os.Stat(filepath.Join(ws.Path, "junk.txt"))
	assert.True(t, os.IsNotExist(err), "leftover work tree file must be gone")
}

type fakeDetector struct {
	provider hosting.Provider
	err      error
}

func (d *fakeDetector) Detect(string) (hosting.Provider, error) {
	return d.provider, d.err
}

type fakeProvider struct {
	spec hosting.MergeRequestSpec
	mr   *hosting.MergeRequest
	err  error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateMergeRequest(_ context.Context, spec hosting.MergeRequestSpec) (*hosting.MergeRequest, error) {
	p.spec = spec
	return p.mr, p.err
}

func (p *fakeProvider) Permissions(context.Context, string, string) (*hosting.Permissions, error) {
	return nil, errors.New("not implemented")
}

func TestFinalize_NoChanges(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)
	res, err := e.Initialize(context.Background(), ws, Options{TaskID: "noop"})
	require.NoError(t, err)

	f := NewFinalizer(git.NewClient(), nil, logging.NewTestLogger().Logger)
	pe, err := f.Finalize(context.Background(), ws, res, "noop")
	require.NoError(t, err)
	assert.False(t, pe.HasChanges)
	assert.Empty(t, pe.CommitHash)
}

func TestFinalize_CommitAndPush(t *testing.T) {
	ws, store, bare := testWorkspace(t, "main")
	e := newTestEngine(store)
	res, err := e.Initialize(context.Background(), ws, Options{TaskID: "edit-1"})
	require.NoError(t, err)

	writeFile(t, ws.Path, "generated.txt", "new content\n")

	f := NewFinalizer(git.NewClient(), nil, logging.NewTestLogger().Logger)
	pe, err := f.Finalize(context.Background(), ws, res, "edit-1")
	require.NoError(t, err)

	assert.True(t, pe.HasChanges)
	assert.NotEmpty(t, pe.CommitHash)
	assert.Equal(t, "edit-1", pe.PushedBranch)
	assert.Empty(t, pe.MergeRequestURL)

	// The branch must exist on the remote with the new commit.
	out, err := exec.Command("git", "-C", bare, "rev-parse", "refs/heads/edit-1").Output()
	require.NoError(t, err)
	assert.Equal(t, pe.CommitHash, strings.TrimSpace(string(out)))

	// Commit message carries the task id.
	msg, err := exec.Command("git", "-C", ws.Path, "log", "-1", "--format=%s").Output()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "[edit-1]")
}

func TestFinalize_OpensMergeRequest(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)
	res, err := e.Initialize(context.Background(), ws, Options{CreateMR: true, TaskID: "mr-edit"})
	require.NoError(t, err)

	writeFile(t, ws.Path, "generated.txt", "new content\n")

	provider := &fakeProvider{mr: &hosting.MergeRequest{WebURL: "https://example.com/pr/7", Number: 7}}
	f := NewFinalizer(git.NewClient(), &fakeDetector{provider: provider}, logging.NewTestLogger().Logger)

	pe, err := f.Finalize(context.Background(), ws, res, "mr-edit")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/pr/7", pe.MergeRequestURL)
	assert.Equal(t, "mr-edit", provider.spec.SourceBranch)
	assert.Equal(t, "main", provider.spec.TargetBranch)
	assert.Equal(t, ws.RepoURL, provider.spec.RepoURL)
	assert.Contains(t, provider.spec.Title, "mr-edit")
}

func TestFinalize_MergeRequestFailureIsNotFatal(t *testing.T) {
	ws, store, _ := testWorkspace(t, "main")
	e := newTestEngine(store)
	res, err := e.Initialize(context.Background(), ws, Options{CreateMR: true, TaskID: "mr-fail"})
	require.NoError(t, err)

	writeFile(t, ws.Path, "generated.txt", "new content\n")

	provider := &fakeProvider{err: errors.New("api unavailable")}
	log := logging.NewTestLogger()
	f := NewFinalizer(git.NewClient(), &fakeDetector{provider: provider}, log.Logger)

	pe, err := f.Finalize(context.Background(), ws, res, "mr-fail")
	require.NoError(t, err)

	// Commit and push are durable; only the merge request is missing.
	assert.True(t, pe.HasChanges)
	assert.NotEmpty(t, pe.CommitHash)
	assert.Empty(t, pe.MergeRequestURL)
}
