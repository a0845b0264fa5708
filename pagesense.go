// Package pagesense provides a high-level façade over the agent runtime:
// store, tool registry, supervisor and per-session reasoners, enabling
// rapid construction of a reading-assistant service. Most applications
// interact with this package by:
//  1. Creating a PageSense via New() (optionally overriding the default
//     in-memory store and no-op instrumentation)
//  2. Registering extra tools beyond the built-in set
//  3. Mounting Handler() on an HTTP mux to serve websocket sessions
//
// The façade delegates turn execution to agent.Reasoner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply the SQLite store and a
// structured logger.
package pagesense

import (
	"github.com/pagesense-ai/pagesense/agent"
	"github.com/pagesense-ai/pagesense/conductor"
	"github.com/pagesense-ai/pagesense/llm"
	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/memory"
	"github.com/pagesense-ai/pagesense/metrics"
	"github.com/pagesense-ai/pagesense/store"
	"github.com/pagesense-ai/pagesense/tool"
	"github.com/pagesense-ai/pagesense/tools"
	"github.com/pagesense-ai/pagesense/usage"
)

// Options configures the PageSense instance.
type Options struct {
	// Store overrides the default in-memory store.
	Store store.Store
	// Logger is shared by every component. Defaults to no-op.
	Logger logging.Logger
	// Metrics receives instrumentation. Defaults to an isolated registry.
	Metrics *metrics.Metrics
	// Usage receives token accounting. Defaults to discarding.
	Usage usage.Recorder
	// SkipBuiltins leaves the registry empty instead of registering the
	// standard tool set.
	SkipBuiltins bool

	// Per-component tuning, applied after the façade's own wiring.
	SupervisorOptions []func(o *tool.SupervisorOptions)
	MemoryOptions     []func(o *memory.ManagerOptions)
	AgentOptions      []func(o *agent.Options)
}

// PageSense bundles the process-wide runtime components.
type PageSense struct {
	store      store.Store
	client     llm.Client
	registry   *tool.Registry
	supervisor *tool.Supervisor
	logger     logging.Logger
	metrics    *metrics.Metrics
	usage      usage.Recorder

	memoryOpts []func(o *memory.ManagerOptions)
	agentOpts  []func(o *agent.Options)
}

// New wires the runtime around an LLM client.
func New(client llm.Client, optFns ...func(o *Options)) *PageSense {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Usage:  usage.NopRecorder{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemory()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}

	registry := tool.NewRegistry(opts.Logger)
	if !opts.SkipBuiltins {
		tools.RegisterBuiltins(registry, opts.Store, nil)
	}

	supOpts := append([]func(o *tool.SupervisorOptions){func(o *tool.SupervisorOptions) {
		o.Logger = opts.Logger
	}}, opts.SupervisorOptions...)

	return &PageSense{
		store:      opts.Store,
		client:     client,
		registry:   registry,
		supervisor: tool.NewSupervisor(registry, supOpts...),
		logger:     logging.OrNoOp(opts.Logger),
		metrics:    opts.Metrics,
		usage:      opts.Usage,
		memoryOpts: opts.MemoryOptions,
		agentOpts:  opts.AgentOptions,
	}
}

// Store returns the persistence layer.
func (p *PageSense) Store() store.Store { return p.store }

// Registry returns the tool catalog for further registration.
func (p *PageSense) Registry() *tool.Registry { return p.registry }

// RegisterTool adds a tool to the catalog.
func (p *PageSense) RegisterTool(t tool.Tool) { p.registry.Register(t) }

// ReasonerFor builds the per-session reasoner bound to one user and
// conversation.
func (p *PageSense) ReasonerFor(userID, conversationID string) *agent.Reasoner {
	memOpts := append([]func(o *memory.ManagerOptions){func(o *memory.ManagerOptions) {
		o.Logger = p.logger
	}}, p.memoryOpts...)
	mem := memory.NewManager(p.store, p.client, userID, conversationID, memOpts...)

	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) {
		o.Logger = p.logger
		o.Metrics = p.metrics
		o.Usage = p.usage
	}}, p.agentOpts...)
	return agent.NewReasoner(p.store, p.client, p.registry, p.supervisor, mem, agentOpts...)
}

// Handler builds the websocket session handler for mounting at
// /ws/agent/.
func (p *PageSense) Handler(auth conductor.Authenticator, optFns ...func(o *conductor.Options)) *conductor.Handler {
	opts := append([]func(o *conductor.Options){func(o *conductor.Options) {
		o.Logger = p.logger
		o.Metrics = p.metrics
	}}, optFns...)
	return conductor.NewHandler(p.store, auth, p.ReasonerFor, opts...)
}
