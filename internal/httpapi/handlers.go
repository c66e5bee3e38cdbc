package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/queue"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// JobRequest is the request body for POST /api/v1/jobs.
type JobRequest struct {
	Type         string          `json:"type,omitempty"` // defaults to claude-code
	WorkspaceID  string          `json:"workspaceId"`
	Question     string          `json:"question,omitempty"`
	Context      string          `json:"context,omitempty"`
	SourceBranch string          `json:"sourceBranch,omitempty"`
	EditRequest  bool            `json:"editRequest,omitempty"`
	CreateMR     bool            `json:"createMR,omitempty"`
	TaskID       string          `json:"taskId,omitempty"`
	Callback     *queue.Callback `json:"callback,omitempty"`
}

// JobAccepted is the response body for POST /api/v1/jobs.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSubmitJob admits a job and returns its id. Submissions always
// force queuing so the response never blocks on CLI latency.
func (s *Server) handleSubmitJob(c echo.Context) error {
	var req JobRequest
	if err := c.Bind(&req); err != nil {
		s.log.Warn(c.Request().Context(), "invalid job request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	typ := queue.Type(req.Type)
	if req.Type == "" {
		typ = queue.TypeClaudeCode
	}

	job, err := s.queue.Submit(c.Request().Context(), typ, queue.Payload{
		WorkspaceID:  req.WorkspaceID,
		Question:     req.Question,
		Context:      req.Context,
		SourceBranch: req.SourceBranch,
		EditRequest:  req.EditRequest,
		CreateMR:     req.CreateMR,
		TaskID:       req.TaskID,
		Callback:     req.Callback,
	}, queue.SubmitOptions{ForceQueue: true})
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "queue is full")
		case errors.Is(err, workspace.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return c.JSON(http.StatusAccepted, JobAccepted{JobID: job.ID, Status: string(job.Status)})
}

func (s *Server) handleGetJob(c echo.Context) error {
	job, err := s.queue.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "job lookup failed")
	}
	s.scrubJob(job)
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleListWorkspaces(c echo.Context) error {
	all, err := s.store.All(c.Request().Context())
	if err != nil {
		s.log.Error(c.Request().Context(), "listing workspaces failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing workspaces failed")
	}
	return c.JSON(http.StatusOK, all)
}

func (s *Server) handleGetWorkspace(c echo.Context) error {
	ws, err := s.store.Load(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) || errors.Is(err, workspace.ErrInvalidID) {
			return echo.NewHTTPError(http.StatusNotFound, "workspace not found")
		}
		s.log.Error(c.Request().Context(), "workspace lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "workspace lookup failed")
	}
	return c.JSON(http.StatusOK, ws)
}

// WorkspaceRequest is the request body for POST /api/v1/workspaces.
type WorkspaceRequest struct {
	RepoURL      string `json:"repoUrl"`
	TargetBranch string `json:"targetBranch,omitempty"`
}

// handleCreateWorkspace clones a repository and registers it.
func (s *Server) handleCreateWorkspace(c echo.Context) error {
	var req WorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repoUrl field is required")
	}

	ws, err := s.manager.Create(c.Request().Context(), req.RepoURL, req.TargetBranch)
	if err != nil {
		s.log.Error(c.Request().Context(), "workspace creation failed",
			zap.String("repo_url", req.RepoURL), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "cloning repository failed")
	}
	return c.JSON(http.StatusCreated, ws)
}

// handleDeleteWorkspace enqueues a cleanup job so deletion respects the
// per-workspace serialization with any in-flight work.
func (s *Server) handleDeleteWorkspace(c echo.Context) error {
	job, err := s.queue.Submit(c.Request().Context(), queue.TypeWorkspaceCleanup,
		queue.Payload{WorkspaceID: c.Param("id")},
		queue.SubmitOptions{ForceQueue: true})
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrNotFound), errors.Is(err, workspace.ErrInvalidID):
			return echo.NewHTTPError(http.StatusNotFound, "workspace not found")
		case errors.Is(err, queue.ErrQueueFull):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "queue is full")
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusAccepted, JobAccepted{JobID: job.ID, Status: string(job.Status)})
}

// scrubJob redacts secrets from AI output before it crosses the API
// boundary. The CLI can echo repository contents, which may include
// credentials committed by mistake.
func (s *Server) scrubJob(job *queue.Job) {
	if job.Result == nil || !s.scrubber.IsEnabled() {
		return
	}
	// The snapshot shares its Result with the queue's record; scrub a copy.
	res := *job.Result
	if res.Output != "" {
		res.Output = s.scrubber.Scrub(res.Output).Scrubbed
	}
	if res.RawOutput != "" {
		res.RawOutput = s.scrubber.Scrub(res.RawOutput).Scrubbed
	}
	job.Result = &res
}
