package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/queue"
	"github.com/fyrsmithlabs/forged/internal/secrets"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

type fixture struct {
	server *Server
	queue  *queue.Queue
	store  workspace.Store
	wsID   string
}

// newFixture builds a server backed by a real queue with a canned
// claude-code handler.
func newFixture(t *testing.T, handler queue.HandlerFunc) *fixture {
	t.Helper()
	store, err := workspace.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ws := &workspace.Workspace{
		ID:        workspace.NewID(),
		Path:      t.TempDir(),
		RepoURL:   "https://github.com/acme/widgets.git",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Save(context.Background(), ws))

	log := logging.NewTestLogger().Logger
	q := queue.New(config.QueueConfig{Workers: 2, Capacity: 16, RateBurst: 1}, store, git.NewClient(), log)
	if handler == nil {
		handler = func(context.Context, queue.Payload) (*queue.Result, error) {
			return &queue.Result{Output: "ok"}, nil
		}
	}
	q.Register(queue.TypeClaudeCode, handler)
	q.Register(queue.TypeWorkspaceCleanup, func(ctx context.Context, p queue.Payload) (*queue.Result, error) {
		if err := store.Delete(ctx, p.WorkspaceID); err != nil {
			return nil, err
		}
		return &queue.Result{}, nil
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	scrubber, err := secrets.New(secrets.DefaultConfig())
	require.NoError(t, err)

	manager := workspace.NewManager(store, git.NewClient(), t.TempDir(), log)
	srv, err := NewServer(q, store, manager, scrubber, log, config.ServerConfig{Host: "localhost", Port: 9190})
	require.NoError(t, err)
	return &fixture{server: srv, queue: q, store: store, wsID: ws.ID}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func waitCompleted(t *testing.T, f *fixture, jobID string) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := f.queue.Get(jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never finished")
	return nil
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSubmitJob(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"workspaceId":"`+f.wsID+`","question":"what is this?"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted JobAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.JobID)
	assert.Equal(t, "queued", accepted.Status)

	waitCompleted(t, f, accepted.JobID)

	poll := f.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "")
	require.Equal(t, http.StatusOK, poll.Code)
	var job queue.Job
	require.NoError(t, json.Unmarshal(poll.Body.Bytes(), &job))
	assert.Equal(t, queue.StatusCompleted, job.Status)
	assert.Equal(t, "ok", job.Result.Output)
}

func TestSubmitJob_Validation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"workspaceId":`, http.StatusBadRequest},
		{"missing question", `{"workspaceId":"` + f.wsID + `"}`, http.StatusBadRequest},
		{"unknown workspace", `{"workspaceId":"000000000000","question":"q"}`, http.StatusNotFound},
		{"unknown type", `{"type":"bogus","workspaceId":"` + f.wsID + `","question":"q"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_ScrubsSecrets(t *testing.T) {
	leaked := "token is ghp_" + strings.Repeat("a", 40)
	f := newFixture(t, func(context.Context, queue.Payload) (*queue.Result, error) {
		return &queue.Result{Output: leaked, RawOutput: leaked}, nil
	})

	rec := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"workspaceId":"`+f.wsID+`","question":"show me the config"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted JobAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	waitCompleted(t, f, accepted.JobID)

	poll := f.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "")
	require.Equal(t, http.StatusOK, poll.Code)
	assert.NotContains(t, poll.Body.String(), "ghp_")
	assert.Contains(t, poll.Body.String(), "[REDACTED]")

	// The stored job is untouched; only the response is scrubbed.
	stored, err := f.queue.Get(accepted.JobID)
	require.NoError(t, err)
	assert.Contains(t, stored.Result.Output, "ghp_")
}

func TestWorkspaces(t *testing.T) {
	f := newFixture(t, nil)

	list := f.do(t, http.MethodGet, "/api/v1/workspaces", "")
	require.Equal(t, http.StatusOK, list.Code)
	var all []workspace.Workspace
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, f.wsID, all[0].ID)

	one := f.do(t, http.MethodGet, "/api/v1/workspaces/"+f.wsID, "")
	assert.Equal(t, http.StatusOK, one.Code)

	missing := f.do(t, http.MethodGet, "/api/v1/workspaces/000000000000", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateWorkspace_Validation(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/v1/workspaces", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteWorkspace(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodDelete, "/api/v1/workspaces/"+f.wsID, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted JobAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	waitCompleted(t, f, accepted.JobID)

	_, err := f.store.Load(context.Background(), f.wsID)
	assert.ErrorIs(t, err, workspace.ErrNotFound)
}

func TestDeleteWorkspace_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodDelete, "/api/v1/workspaces/000000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
