package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/tbaudier/overseer/internal/intent"
)

// ActionKind names one step in an action plan.
type ActionKind string

const (
	ActionDirectResponse ActionKind = "directResponse"
	ActionSystemStatus   ActionKind = "systemStatus"
	ActionQueryMemory    ActionKind = "queryMemory"
	ActionForgeTool      ActionKind = "forgeTool"
	ActionSpawnAgent     ActionKind = "spawnAgent"
)

// Action is one planned step with its payload.
type Action struct {
	Kind             ActionKind
	ForgeDescription string     // forgeTool
	MemoryQuery      string     // queryMemory
	AgentSpec        *AgentSpec // spawnAgent
}

// ActionPlan is the ephemeral plan for one request. It lives only for the
// duration of a single ProcessMessage call and is never persisted.
type ActionPlan struct {
	TraceID string
	Intent  *intent.Analysis
	Actions []Action
}

// ActionKinds lists the plan's action kinds in order.
func (p *ActionPlan) ActionKinds() []string {
	kinds := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		kinds[i] = string(a.Kind)
	}
	return kinds
}

// buildPlan maps an intent onto an ordered action list.
//
// Chat/Unknown reply directly; System reports status; Query searches memory;
// Create forges a tool; Analyze and Execute delegate to an agent, forging a
// tool first only when the intent names one the knowledge store doesn't have.
func (o *Orchestrator) buildPlan(traceID, message string, analysis *intent.Analysis) *ActionPlan {
	plan := &ActionPlan{TraceID: traceID, Intent: analysis}

	switch analysis.Kind {
	case intent.KindChat, intent.KindUnknown:
		plan.Actions = append(plan.Actions, Action{Kind: ActionDirectResponse})

	case intent.KindSystem:
		plan.Actions = append(plan.Actions, Action{Kind: ActionSystemStatus})

	case intent.KindQuery:
		plan.Actions = append(plan.Actions, Action{Kind: ActionQueryMemory, MemoryQuery: message})

	case intent.KindCreate:
		plan.Actions = append(plan.Actions, Action{Kind: ActionForgeTool, ForgeDescription: message})

	case intent.KindAnalyze, intent.KindExecute:
		if analysis.RequiresTool && analysis.ToolName != "" && !o.toolKnown(analysis) {
			plan.Actions = append(plan.Actions, Action{Kind: ActionForgeTool, ForgeDescription: message})
		}
		plan.Actions = append(plan.Actions, Action{
			Kind:      ActionSpawnAgent,
			AgentSpec: o.agentSpecFor(message, analysis),
		})

	default:
		plan.Actions = append(plan.Actions, Action{Kind: ActionDirectResponse})
	}

	return plan
}

// toolKnown reports whether the intent's named tool already exists for its
// domain. Lookup errors count as unknown so forging proceeds.
func (o *Orchestrator) toolKnown(analysis *intent.Analysis) bool {
	if o.knowledge == nil {
		return false
	}
	names, err := o.knowledge.ToolsByDomain(analysis.Domain)
	if err != nil {
		slog.Warn("knowledge lookup failed, assuming tool unknown",
			"tool", analysis.ToolName, "error", err)
		return false
	}
	for _, name := range names {
		if name == analysis.ToolName {
			return true
		}
	}
	return false
}

func (o *Orchestrator) agentSpecFor(message string, analysis *intent.Analysis) *AgentSpec {
	name := analysis.Action
	if name == "" {
		name = fmt.Sprintf("%s-agent", analysis.Kind)
	}
	return &AgentSpec{
		Name:         name,
		Instructions: message,
		Domain:       analysis.Domain,
	}
}
