package services

import (
	"github.com/fyrsmithlabs/forged/internal/claude"
	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/gitflow"
	"github.com/fyrsmithlabs/forged/internal/hosting"
	"github.com/fyrsmithlabs/forged/internal/queue"
	"github.com/fyrsmithlabs/forged/internal/secrets"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// Registry provides access to all forged services. It is built once at
// process start and passed by reference; there is no module-level state.
type Registry interface {
	Workspaces() workspace.Store
	Queue() *queue.Queue
	Git() *git.Client
	Engine() *gitflow.Engine
	Finalizer() *gitflow.Finalizer
	Runner() *claude.Runner
	Hosting() *hosting.Detector
	Scrubber() secrets.Scrubber
}

// Options configures the registry with service instances.
type Options struct {
	Workspaces workspace.Store
	Queue      *queue.Queue
	Git        *git.Client
	Engine     *gitflow.Engine
	Finalizer  *gitflow.Finalizer
	Runner     *claude.Runner
	Hosting    *hosting.Detector
	Scrubber   secrets.Scrubber
}

// registry is the concrete implementation of Registry.
type registry struct {
	workspaces workspace.Store
	queue      *queue.Queue
	git        *git.Client
	engine     *gitflow.Engine
	finalizer  *gitflow.Finalizer
	runner     *claude.Runner
	hosting    *hosting.Detector
	scrubber   secrets.Scrubber
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		workspaces: opts.Workspaces,
		queue:      opts.Queue,
		git:        opts.Git,
		engine:     opts.Engine,
		finalizer:  opts.Finalizer,
		runner:     opts.Runner,
		hosting:    opts.Hosting,
		scrubber:   opts.Scrubber,
	}
}

func (r *registry) Workspaces() workspace.Store   { return r.workspaces }
func (r *registry) Queue() *queue.Queue           { return r.queue }
func (r *registry) Git() *git.Client              { return r.git }
func (r *registry) Engine() *gitflow.Engine       { return r.engine }
func (r *registry) Finalizer() *gitflow.Finalizer { return r.finalizer }
func (r *registry) Runner() *claude.Runner        { return r.runner }
func (r *registry) Hosting() *hosting.Detector    { return r.hosting }
func (r *registry) Scrubber() secrets.Scrubber    { return r.scrubber }
