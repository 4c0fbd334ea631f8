package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbaudier/overseer/internal/providers"
)

// executePlan runs every action in order, concatenating their textual
// results into the final response. Side-effect lists accumulate regardless
// of individual action outcomes; the result is successful only if every
// action succeeded.
func (o *Orchestrator) executePlan(ctx context.Context, message string, plan *ActionPlan, opts ProcessOptions) *ExecutionResult {
	result := &ExecutionResult{TraceID: plan.TraceID, Success: true}

	var parts []string
	for _, action := range plan.Actions {
		result.ActionsTaken = append(result.ActionsTaken, string(action.Kind))

		var text string
		var err error
		switch action.Kind {
		case ActionDirectResponse:
			text, err = o.directResponse(ctx, message, plan.TraceID, opts)
		case ActionSystemStatus:
			text = o.systemStatus()
		case ActionQueryMemory:
			text, err = o.queryMemory(ctx, action.MemoryQuery, plan, result)
		case ActionForgeTool:
			text, err = o.forgeTool(ctx, action.ForgeDescription, plan, result)
		case ActionSpawnAgent:
			text, err = o.spawnAgent(ctx, *action.AgentSpec, plan.TraceID, opts, result)
		default:
			err = fmt.Errorf("unknown action kind %q", action.Kind)
		}

		if err != nil {
			result.Success = false
			result.Error = err.Error()
			if text == "" {
				text = fmt.Sprintf("%s failed: %v", action.Kind, err)
			}
		}
		if text != "" {
			parts = append(parts, text)
		}
	}

	result.Response = strings.Join(parts, "\n\n")
	return result
}

func (o *Orchestrator) directResponse(ctx context.Context, message, traceID string, opts ProcessOptions) (string, error) {
	resp := o.router.CallWithFailover(ctx, providers.Request{
		Prompt:      message,
		TraceID:     traceID,
		Type:        providers.RequestChat,
		Model:       opts.Model,
		Temperature: 0.7,
	})
	if !resp.Success {
		return "", fmt.Errorf("direct response failed: %s", resp.Error)
	}
	return resp.Content, nil
}

// systemStatus reports provider health and uptime. Always succeeds.
func (o *Orchestrator) systemStatus() string {
	var b strings.Builder
	fmt.Fprintf(&b, "System up for %s.\n", o.Uptime().Round(1e9))

	if o.status == nil {
		b.WriteString("No providers registered.")
		return b.String()
	}

	b.WriteString("Providers:\n")
	for _, p := range o.status.All() {
		fmt.Fprintf(&b, "- %s: %s", p.Name(), p.Status())
		if n := p.ConsecutiveFailures(); n > 0 {
			fmt.Fprintf(&b, " (%d consecutive failures)", n)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) queryMemory(ctx context.Context, query string, plan *ActionPlan, result *ExecutionResult) (string, error) {
	if o.episodic == nil {
		return "Memory is not available.", nil
	}

	records, err := o.episodic.Search(ctx, query, 5, plan.Intent.Domain)
	if err != nil {
		return "", fmt.Errorf("memory search failed: %w", err)
	}
	result.MemoriesQueried = len(records)

	if len(records) == 0 {
		return "No matching memories found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d related memories:\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(&b, "- %s (%s)\n", rec.Summary, rec.Timestamp.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (o *Orchestrator) forgeTool(ctx context.Context, description string, plan *ActionPlan, result *ExecutionResult) (string, error) {
	if o.forge == nil {
		return "", fmt.Errorf("tool forging is not available")
	}

	hints := map[string]string{}
	if plan.Intent.Domain != "" {
		hints["domain"] = plan.Intent.Domain
	}
	if plan.Intent.ToolName != "" {
		hints["name"] = plan.Intent.ToolName
	}

	tool, err := o.forge.GenerateTool(ctx, description, hints)
	if err != nil {
		return "", fmt.Errorf("forge tool: %w", err)
	}

	result.ToolsForged = append(result.ToolsForged, tool.Name)
	return fmt.Sprintf("Forged tool %q (%s, validation: %s).",
		tool.Name, tool.Domain, tool.ValidationStatus), nil
}
