// Package agents provides the router-backed default implementations of the
// orchestrator's delegation collaborators: an agent factory whose agents are
// single model calls, and a forge that generates tool files.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbaudier/overseer/internal/orchestrator"
	"github.com/tbaudier/overseer/internal/providers"
)

// Factory spawns single-call agents over the provider router.
type Factory struct {
	router    orchestrator.RouterCaller
	workspace string
}

func NewFactory(router orchestrator.RouterCaller, workspace string) *Factory {
	return &Factory{router: router, workspace: workspace}
}

// Spawn builds an agent bound to one attempt.
func (f *Factory) Spawn(_ context.Context, spec orchestrator.AgentSpec, attempt orchestrator.AttemptContext) (orchestrator.Agent, error) {
	if spec.Instructions == "" {
		return nil, fmt.Errorf("agent spec has no instructions")
	}
	return &routedAgent{factory: f, spec: spec, attempt: attempt}, nil
}

type routedAgent struct {
	factory *Factory
	spec    orchestrator.AgentSpec
	attempt orchestrator.AttemptContext
}

// Run performs the agent's single routed call. The preamble tells the model
// how to produce verifiable output: save real files into the workspace and
// name them, or wrap executed results in the execution markers.
func (a *routedAgent) Run(ctx context.Context) (*orchestrator.AgentResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %q, an autonomous agent", a.spec.Name)
	if a.spec.Domain != "" {
		fmt.Fprintf(&b, " working in the %s domain", a.spec.Domain)
	}
	b.WriteString(".\n")
	if a.factory.workspace != "" {
		fmt.Fprintf(&b, "Your output workspace is %s. ", a.factory.workspace)
	}
	b.WriteString("When you produce a file, mention its exact filename. " +
		"When you execute code, print the line EXECUTION COMPLETE after a " +
		"successful run, or EXECUTION FAILED after a failed one.\n")
	if a.attempt.Attempt > 1 {
		fmt.Fprintf(&b, "This is attempt %d.\n", a.attempt.Attempt)
	}
	b.WriteString("\nTask:\n")
	b.WriteString(a.spec.Instructions)

	resp := a.factory.router.CallWithFailover(ctx, providers.Request{
		Prompt:      b.String(),
		Type:        providers.RequestAgent,
		Model:       a.spec.Model,
		Temperature: 0.2,
	})

	result := &orchestrator.AgentResult{
		Success: resp.Success,
		Content: resp.Content,
		Error:   resp.Error,
	}
	return result, nil
}
