package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// maxAgentAttempts bounds the spawn retry loop.
const maxAgentAttempts = 3

// verifyDirective is injected into the next attempt when an agent claims
// success but produced nothing checkable.
const verifyDirective = "Your previous output could not be verified. " +
	"Save your result to a file in the workspace, or print the execution " +
	"markers around your program output."

// spawnAgent delegates work to a spawned agent, retrying up to
// maxAgentAttempts times. Execution failures feed their error text into the
// next attempt; claimed successes must pass output verification before they
// are believed.
func (o *Orchestrator) spawnAgent(ctx context.Context, spec AgentSpec, traceID string, opts ProcessOptions, result *ExecutionResult) (string, error) {
	if o.factory == nil {
		return "", fmt.Errorf("agent spawning is not available")
	}

	if spec.Model == "" {
		spec.Model = opts.Model
	}
	result.AgentsSpawned = append(result.AgentsSpawned, spec.Name)

	log := slog.With("trace_id", traceID, "agent", spec.Name)

	var prevErr, lastOutput string
	for attempt := 1; attempt <= maxAgentAttempts; attempt++ {
		attemptCtx := AttemptContext{Attempt: attempt, PreviousError: prevErr}

		attemptSpec := spec
		if prevErr != "" {
			attemptSpec.Instructions = spec.Instructions +
				"\n\nPrevious attempt failed with:\n" + prevErr
		}

		agent, err := o.factory.Spawn(ctx, attemptSpec, attemptCtx)
		if err != nil {
			prevErr = err.Error()
			log.Warn("agent spawn failed", "attempt", attempt, "error", err)
			continue
		}

		res, err := agent.Run(ctx)
		if err != nil {
			prevErr = err.Error()
			log.Warn("agent run errored", "attempt", attempt, "error", err)
			continue
		}
		if !res.Success {
			// Execution failure: retry with the error text, no verification.
			prevErr = res.Error
			if prevErr == "" {
				prevErr = "agent reported failure without detail"
			}
			lastOutput = res.Content
			log.Warn("agent reported failure", "attempt", attempt, "error", prevErr)
			continue
		}

		lastOutput = res.Content
		v := o.verifyOutput(res.Content)
		if v.verified {
			log.Info("agent output verified", "attempt", attempt, "artifacts", len(v.files))
			return withArtifactLinks(res.Content, v.files), nil
		}

		prevErr = verifyDirective
		log.Warn("agent output unverified", "attempt", attempt)
	}

	text := fmt.Sprintf("Agent %q failed after %d attempts.", spec.Name, maxAgentAttempts)
	if tb := extractTraceback(lastOutput); tb != nil {
		text += fmt.Sprintf(" Last error: %s at %s line %s", tb.ErrType, tb.File, tb.Line)
		if tb.Message != "" {
			text += ": " + tb.Message
		}
		text += "."
	}
	return text, fmt.Errorf("agent %q failed after %d attempts: %s", spec.Name, maxAgentAttempts, prevErr)
}

// withArtifactLinks appends download links for verified artifacts.
func withArtifactLinks(content string, files []string) string {
	if len(files) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\nArtifacts:")
	for _, f := range files {
		fmt.Fprintf(&b, "\n- /api/files/%s", f)
	}
	return b.String()
}
