package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/forged/internal/claude"
	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/fyrsmithlabs/forged/internal/gitflow"
)

// Type identifies what a job does.
type Type string

const (
	TypeClaudeCode       Type = "claude-code"
	TypeGitPush          Type = "git-push"
	TypeGitMR            Type = "git-mr"
	TypeWorkspaceCleanup Type = "workspace-cleanup"
)

// Status is a job's lifecycle state. Transitions are
// queued -> running -> completed|failed, exactly once; terminal states
// are immutable and there is no automatic retry.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Callback describes where to POST a job's terminal result.
type Callback struct {
	URL    string        `json:"url"`
	Secret config.Secret `json:"secret,omitempty"`
}

// Payload is the immutable input of a job. Which fields matter depends
// on the job type; WorkspaceID is required for all of them.
type Payload struct {
	WorkspaceID  string    `json:"workspaceId"`
	Question     string    `json:"question,omitempty"`
	Context      string    `json:"context,omitempty"`
	SourceBranch string    `json:"sourceBranch,omitempty"`
	EditRequest  bool      `json:"editRequest,omitempty"`
	CreateMR     bool      `json:"createMR,omitempty"`
	TaskID       string    `json:"taskId,omitempty"`
	Callback     *Callback `json:"callback,omitempty"`
}

// Result is what a completed job produced.
type Result struct {
	Output        string                 `json:"output,omitempty"`
	GitInit       *gitflow.Result        `json:"gitInitResult,omitempty"`
	PostExecution *gitflow.PostExecution `json:"postExecution,omitempty"`
	Usage         *claude.Usage          `json:"usage,omitempty"`
	JSONLogs      []claude.LogEntry      `json:"jsonLogs,omitempty"`
	RawOutput     string                 `json:"rawOutput,omitempty"`
}

// Job is one unit of queued work. The queue is its only mutator after
// submission; everyone else sees snapshots.
type Job struct {
	ID         string     `json:"id"`
	Type       Type       `json:"type"`
	Payload    Payload    `json:"payload"`
	Status     Status     `json:"status"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func newJob(typ Type, payload Payload) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

// snapshot returns a copy safe to hand outside the queue's lock. Result
// is shared but never mutated after the job reaches a terminal state.
func (j *Job) snapshot() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
