// Package orchestrator turns a classified message into an ordered action
// plan and executes it: direct replies through the provider router, memory
// queries, tool forging, and delegated agent runs with bounded
// retry/verification.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tbaudier/overseer/internal/events"
	"github.com/tbaudier/overseer/internal/intent"
	"github.com/tbaudier/overseer/internal/memory"
	"github.com/tbaudier/overseer/internal/providers"
)

// AttemptContext describes one agent attempt. A fresh value is built for
// every attempt; earlier attempts are never mutated.
type AttemptContext struct {
	Attempt       int    // 1-based
	PreviousError string // empty on the first attempt
}

// AgentSpec describes the work delegated to a spawned agent.
type AgentSpec struct {
	Name         string
	Instructions string
	Domain       string
	Model        string
}

// AgentResult is an agent's self-reported outcome. Success here is the
// collaborator's claim; verification decides whether to believe it.
type AgentResult struct {
	Success         bool
	Content         string
	Error           string
	DurationSeconds float64
}

// Agent is one spawned unit of delegated work.
type Agent interface {
	Run(ctx context.Context) (*AgentResult, error)
}

// AgentFactory spawns agents from specs.
type AgentFactory interface {
	Spawn(ctx context.Context, spec AgentSpec, attempt AttemptContext) (Agent, error)
}

// ToolForge generates new tools from natural-language descriptions.
type ToolForge interface {
	GenerateTool(ctx context.Context, description string, hints map[string]string) (*memory.ToolRecord, error)
}

// EpisodicMemory answers keyword searches over remembered episodes.
type EpisodicMemory interface {
	Search(ctx context.Context, query string, k int, domain string) ([]memory.Record, error)
}

// KnowledgeStore answers which tools already exist for a domain.
type KnowledgeStore interface {
	ToolsByDomain(domain string) ([]string, error)
}

// Analyzer classifies messages.
type Analyzer interface {
	Analyze(ctx context.Context, message string) *intent.Analysis
}

// RouterCaller is the slice of the provider router the orchestrator needs.
type RouterCaller interface {
	CallWithFailover(ctx context.Context, req providers.Request) *providers.Response
}

// StatusReporter surfaces provider health for the systemStatus action.
type StatusReporter interface {
	All() []*providers.Provider
}

// ExecutionResult is the terminal record of one ProcessMessage call.
type ExecutionResult struct {
	TraceID         string        `json:"trace_id"`
	Success         bool          `json:"success"`
	Response        string        `json:"response"`
	ActionsTaken    []string      `json:"actions_taken,omitempty"`
	ToolsForged     []string      `json:"tools_forged,omitempty"`
	AgentsSpawned   []string      `json:"agents_spawned,omitempty"`
	MemoriesQueried int           `json:"memories_queried,omitempty"`
	ExecutionTime   time.Duration `json:"execution_time"`
	Error           string        `json:"error,omitempty"`
}

// ProcessOptions carry per-request routing hints from the caller.
type ProcessOptions struct {
	TraceID  string
	ThreadID string
	Model    string // "", "auto", or a concrete model id
	ChatOnly bool   // skip classification, answer directly
}

// Orchestrator executes classified requests. All collaborators are injected;
// nil collaborators disable the corresponding actions gracefully.
type Orchestrator struct {
	router    RouterCaller
	analyzer  Analyzer
	factory   AgentFactory
	forge     ToolForge
	episodic  EpisodicMemory
	knowledge KnowledgeStore
	status    StatusReporter
	bus       *events.Bus

	workspace string // root of the managed output workspace for verification
	started   time.Time
}

// Options bundle the orchestrator's collaborators.
type Options struct {
	Router    RouterCaller
	Analyzer  Analyzer
	Factory   AgentFactory
	Forge     ToolForge
	Episodic  EpisodicMemory
	Knowledge KnowledgeStore
	Status    StatusReporter
	Bus       *events.Bus
	Workspace string
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		router:    opts.Router,
		analyzer:  opts.Analyzer,
		factory:   opts.Factory,
		forge:     opts.Forge,
		episodic:  opts.Episodic,
		knowledge: opts.Knowledge,
		status:    opts.Status,
		bus:       opts.Bus,
		workspace: opts.Workspace,
		started:   time.Now(),
	}
}

// requestState tracks a request through its lifecycle, for logging only.
type requestState string

const (
	stateClassified requestState = "classified"
	statePlanned    requestState = "planned"
	stateExecuting  requestState = "executing"
	stateDone       requestState = "done"
)

// ProcessMessage classifies the message, builds an action plan and executes
// it. It never returns an error: failures land in the result's Error field
// so the owning task carries a human-readable cause.
func (o *Orchestrator) ProcessMessage(ctx context.Context, message string, opts ProcessOptions) *ExecutionResult {
	traceID := opts.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	start := time.Now()

	log := slog.With("trace_id", traceID)

	var analysis *intent.Analysis
	if opts.ChatOnly {
		analysis = &intent.Analysis{Kind: intent.KindChat, Confidence: 1}
	} else {
		analysis = o.analyzer.Analyze(ctx, message)
	}
	log.Info("request classified", "state", stateClassified,
		"kind", analysis.Kind, "confidence", analysis.Confidence)

	plan := o.buildPlan(traceID, message, analysis)
	log.Info("plan built", "state", statePlanned, "actions", plan.ActionKinds())

	log.Debug("executing plan", "state", stateExecuting)
	result := o.executePlan(ctx, message, plan, opts)
	result.ExecutionTime = time.Since(start)

	log.Info("request finished", "state", stateDone,
		"success", result.Success, "duration", result.ExecutionTime)
	return result
}

// Uptime reports how long this orchestrator has been running.
func (o *Orchestrator) Uptime() time.Duration {
	return time.Since(o.started)
}
