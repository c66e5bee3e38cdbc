package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueFull indicates admission was refused for lack of capacity.
	ErrQueueFull = errors.New("queue is full")
)

// HandlerFunc executes one job type.
type HandlerFunc func(ctx context.Context, payload Payload) (*Result, error)

// SubmitOptions controls admission behavior.
type SubmitOptions struct {
	// ForceQueue always enqueues, even when the job could run inline.
	// HTTP handlers set this so responses never block on execution.
	ForceQueue bool
}

// Queue runs jobs on a worker pool with per-workspace FIFO
// serialization: at most one job mutates a given workspace at a time,
// and same-workspace jobs run in submission order.
type Queue struct {
	cfg      config.QueueConfig
	log      *logging.Logger
	store    workspace.Store
	git      *git.Client
	handlers map[Type]HandlerFunc
	limiter  *rate.Limiter
	client   *http.Client

	mu      sync.Mutex
	jobs    map[string]*Job
	pending map[string][]string // workspace id -> queued job ids, FIFO
	owned   map[string]bool     // workspace currently assigned to a worker
	ready   chan string         // workspace ids with queued work

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a queue. Handlers are registered with Register before
// Start. A zero rate_per_minute disables rate limiting of claude-code
// jobs.
func New(cfg config.QueueConfig, store workspace.Store, gitClient *git.Client, log *logging.Logger) *Queue {
	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), cfg.RateBurst)
	}
	return &Queue{
		cfg:      cfg,
		log:      log.Named("queue"),
		store:    store,
		git:      gitClient,
		handlers: make(map[Type]HandlerFunc),
		limiter:  limiter,
		client:   &http.Client{Timeout: 10 * time.Second},
		jobs:     make(map[string]*Job),
		pending:  make(map[string][]string),
		owned:    make(map[string]bool),
		ready:    make(chan string, cfg.Capacity),
	}
}

// Register installs the handler for a job type. Must be called before
// Start.
func (q *Queue) Register(typ Type, fn HandlerFunc) {
	q.handlers[typ] = fn
}

// Start launches the worker pool. Queued jobs execute under the given
// context, not the submitter's.
func (q *Queue) Start(ctx context.Context) {
	q.baseCtx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(q.baseCtx)
	}

	// Schedule anything submitted before the pool came up.
	q.mu.Lock()
	q.started = true
	for wsID := range q.pending {
		q.owned[wsID] = true
		select {
		case q.ready <- wsID:
		default:
		}
	}
	q.mu.Unlock()
	q.log.Info(ctx, "queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels the workers and waits for in-flight jobs to wind down.
// Jobs still queued stay queued and are lost on process exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return
	}
	q.cancel()
	q.wg.Wait()
}

// Submit validates and admits a job. With ForceQueue, or when the
// workspace is busy, the job is enqueued and the returned snapshot is
// still queued; otherwise the job runs inline and the snapshot is
// terminal with its result or error attached.
func (q *Queue) Submit(ctx context.Context, typ Type, payload Payload, opts SubmitOptions) (*Job, error) {
	if err := q.validate(ctx, typ, payload); err != nil {
		return nil, err
	}

	job := newJob(typ, payload)
	wsID := payload.WorkspaceID

	q.mu.Lock()
	started := q.started
	busy := q.owned[wsID] || len(q.pending[wsID]) > 0
	if opts.ForceQueue || busy || !started {
		q.jobs[job.ID] = job
		q.pending[wsID] = append(q.pending[wsID], job.ID)
		notify := !q.owned[wsID]
		if notify {
			q.owned[wsID] = true
		}
		q.mu.Unlock()

		if notify && started {
			select {
			case q.ready <- wsID:
			default:
				q.withdraw(job.ID, wsID)
				return nil, ErrQueueFull
			}
		}
		QueueDepth.Inc()
		q.log.Debug(ctx, "job enqueued",
			zap.String("job_id", job.ID),
			zap.String("type", string(typ)),
			zap.String("workspace_id", wsID))
		return job.snapshot(), nil
	}

	// Inline execution: claim the workspace, run, then hand off any work
	// that arrived meanwhile.
	q.owned[wsID] = true
	q.jobs[job.ID] = job
	q.mu.Unlock()

	QueueDepth.Inc()
	q.execute(ctx, job)
	q.release(wsID)
	return q.mustSnapshot(job.ID), nil
}

// Get returns a snapshot of the job for polling.
func (q *Queue) Get(jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// All returns snapshots of every known job, newest first not guaranteed.
func (q *Queue) All() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// validate fails fast at admission: the workspace must exist, a
// claude-code job needs a question, and an explicitly requested branch
// must exist on the remote.
func (q *Queue) validate(ctx context.Context, typ Type, payload Payload) error {
	if _, ok := q.handlers[typ]; !ok {
		return fmt.Errorf("unknown job type %q", typ)
	}
	if payload.WorkspaceID == "" {
		return errors.New("workspaceId is required")
	}
	ws, err := q.store.Load(ctx, payload.WorkspaceID)
	if err != nil {
		return fmt.Errorf("workspace %q: %w", payload.WorkspaceID, err)
	}

	switch typ {
	case TypeClaudeCode:
		if strings.TrimSpace(payload.Question) == "" {
			return errors.New("question is required")
		}
		if payload.SourceBranch != "" && !payload.EditRequest {
			exists, err := q.git.BranchExistsOnRemote(ctx, ws.Path, payload.SourceBranch)
			if err != nil {
				return fmt.Errorf("checking branch %q: %w", payload.SourceBranch, err)
			}
			if !exists {
				return fmt.Errorf("branch %q does not exist on the remote", payload.SourceBranch)
			}
		}
	case TypeGitMR:
		if payload.SourceBranch == "" {
			return errors.New("sourceBranch is required for git-mr jobs")
		}
	}
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case wsID := <-q.ready:
			ActiveWorkers.Inc()
			q.drain(ctx, wsID)
			ActiveWorkers.Dec()
		}
	}
}

// drain runs the workspace's queued jobs in FIFO order until none
// remain, then releases ownership.
func (q *Queue) drain(ctx context.Context, wsID string) {
	for {
		q.mu.Lock()
		ids := q.pending[wsID]
		if len(ids) == 0 {
			q.owned[wsID] = false
			delete(q.pending, wsID)
			q.mu.Unlock()
			return
		}
		q.pending[wsID] = ids[1:]
		job := q.jobs[ids[0]]
		q.mu.Unlock()

		q.execute(ctx, job)

		if ctx.Err() != nil {
			q.release(wsID)
			return
		}
	}
}

// release drops workspace ownership, or re-queues the workspace when
// jobs arrived while it was held.
func (q *Queue) release(wsID string) {
	q.mu.Lock()
	started := q.started
	remaining := len(q.pending[wsID])
	if remaining == 0 {
		q.owned[wsID] = false
		delete(q.pending, wsID)
	}
	q.mu.Unlock()

	if remaining > 0 && started {
		select {
		case q.ready <- wsID:
		default:
			// Capacity pressure; the next submit for this workspace will
			// not re-notify, so force ownership release to avoid a stall.
			q.mu.Lock()
			q.owned[wsID] = false
			q.mu.Unlock()
		}
	}
}

func (q *Queue) execute(ctx context.Context, job *Job) {
	now := time.Now().UTC()
	q.mu.Lock()
	if job.Status != StatusQueued {
		q.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.StartedAt = &now
	q.mu.Unlock()
	QueueDepth.Dec()

	jobCtx := logging.WithJobID(ctx, job.ID)
	q.log.Info(jobCtx, "job started",
		zap.String("type", string(job.Type)),
		zap.String("workspace_id", job.Payload.WorkspaceID))

	if job.Type == TypeClaudeCode && q.limiter != nil {
		if err := q.limiter.Wait(jobCtx); err != nil {
			q.finish(jobCtx, job, nil, fmt.Errorf("rate limit wait: %w", err))
			return
		}
	}

	result, err := q.handlers[job.Type](jobCtx, job.Payload)
	q.finish(jobCtx, job, result, err)
}

// finish moves a running job to its terminal state exactly once.
func (q *Queue) finish(ctx context.Context, job *Job, result *Result, err error) {
	now := time.Now().UTC()
	q.mu.Lock()
	if job.Status != StatusRunning {
		q.mu.Unlock()
		return
	}
	job.FinishedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = result
	}
	status := job.Status
	q.mu.Unlock()

	JobsTotal.WithLabelValues(string(job.Type), string(status)).Inc()
	if job.StartedAt != nil {
		JobDuration.WithLabelValues(string(job.Type)).Observe(now.Sub(*job.StartedAt).Seconds())
	}

	if err != nil {
		q.log.Error(ctx, "job failed",
			zap.String("type", string(job.Type)),
			zap.Error(err))
	} else {
		q.log.Info(ctx, "job completed", zap.String("type", string(job.Type)))
	}

	if cb := job.Payload.Callback; cb != nil && cb.URL != "" {
		go q.deliverCallback(job.snapshot(), cb)
	}
}

// withdraw removes a job that was admitted but could not be scheduled.
func (q *Queue) withdraw(jobID, wsID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, jobID)
	ids := q.pending[wsID]
	for i, id := range ids {
		if id == jobID {
			q.pending[wsID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(q.pending[wsID]) == 0 {
		q.owned[wsID] = false
		delete(q.pending, wsID)
	}
}

func (q *Queue) mustSnapshot(jobID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[jobID].snapshot()
}
