package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/events"
	"github.com/tbaudier/overseer/internal/llmjson"
)

// RequestType selects which priority order a routing decision uses.
type RequestType string

const (
	RequestChat  RequestType = "chat"  // interactive calls
	RequestAgent RequestType = "agent" // autonomous-agent calls
)

// ModelAuto asks the router to pick a model from the configured candidate pool.
const ModelAuto = "auto"

// pickerPromptChars is how much of the caller's prompt the picker sees.
const pickerPromptChars = 800

// Request is one routed call.
type Request struct {
	Prompt      string
	TraceID     string
	Type        RequestType
	Model       string // "", "auto", or a concrete model id
	Temperature float32
	MaxTokens   int
}

// Response is the outcome of a routed call. On total routing failure Success
// is false and Error carries the last underlying error message.
type Response struct {
	Content      string
	Model        string
	Provider     string
	Success      bool
	Error        string
	TokensInput  int
	TokensOutput int
}

// Router owns candidate resolution and ordered failover across providers.
type Router struct {
	registry *Registry
	routing  *config.RoutingConfig
	bus      *events.Bus
}

// NewRouter creates a router. routing may be nil to disable auto mode.
func NewRouter(registry *Registry, routing *config.RoutingConfig, bus *events.Bus) *Router {
	if routing == nil {
		routing = &config.RoutingConfig{}
	}
	return &Router{registry: registry, routing: routing, bus: bus}
}

// Registry exposes the underlying provider registry (status surfaces).
func (rt *Router) Registry() *Registry { return rt.registry }

// CallWithFailover resolves the candidate model list for the request, then
// tries each candidate in order until one succeeds. The first success wins;
// exhausting all candidates yields a failure response with the last error.
func (rt *Router) CallWithFailover(ctx context.Context, req Request) *Response {
	candidates := rt.resolveCandidates(ctx, req)
	if len(candidates) == 0 {
		return &Response{Success: false, Error: "no model candidates configured"}
	}

	rt.selfHeal(candidates, req.TraceID)

	var lastErr string
	for _, candidate := range candidates {
		provider, err := rt.registry.ForModel(candidate)
		if err != nil {
			lastErr = err.Error()
			continue
		}

		if provider.Status() == StatusOffline {
			slog.Debug("skipping offline provider",
				"provider", provider.Name(), "model", candidate, "trace_id", req.TraceID)
			continue
		}

		result, err := provider.Generate(ctx, req.Prompt, GenerateOptions{
			Model:       candidate,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			lastErr = err.Error()
			slog.Warn("provider call failed",
				"provider", provider.Name(), "model", candidate,
				"trace_id", req.TraceID, "error", err)

			if provider.RecordFailure() {
				rt.publishOffline(provider, lastErr, req.TraceID)
			}
			rt.publishUsage(provider.Name(), candidate, req, nil, err)
			continue
		}

		if provider.RecordSuccess() {
			rt.publishRecovered(provider, "success", req.TraceID)
		}
		rt.publishUsage(provider.Name(), candidate, req, result, nil)

		return &Response{
			Content:      result.Content,
			Model:        candidate,
			Provider:     provider.Name(),
			Success:      true,
			TokensInput:  result.TokensInput,
			TokensOutput: result.TokensOutput,
		}
	}

	if lastErr == "" {
		lastErr = "all candidate providers exhausted"
	}
	return &Response{Success: false, Error: lastErr}
}

// resolveCandidates produces the ordered model-id list for a request:
// a concrete id is used alone; "auto" consults the picker over the enabled
// pool; otherwise the class priority order applies.
func (rt *Router) resolveCandidates(ctx context.Context, req Request) []string {
	switch {
	case req.Model != "" && req.Model != ModelAuto:
		return []string{req.Model}
	case req.Model == ModelAuto:
		return rt.autoRoute(ctx, req)
	default:
		return rt.registry.Priority(req.Type)
	}
}

// autoRoute asks the picker model to choose among the enabled pool. Any
// picker problem (no pool, no picker, call failure, bad JSON, id outside the
// pool) degrades to the pool's natural order.
func (rt *Router) autoRoute(ctx context.Context, req Request) []string {
	pool := rt.routing.EnabledModels(string(req.Type))
	if len(pool) == 0 {
		return rt.registry.Priority(req.Type)
	}
	if len(pool) == 1 || rt.routing.Picker == "" {
		return pool
	}

	chosen := rt.pickModel(ctx, req, pool)
	if chosen == "" {
		return pool
	}

	// Move the chosen id to the front; the rest keep their configured order.
	ordered := make([]string, 0, len(pool))
	ordered = append(ordered, chosen)
	for _, id := range pool {
		if id != chosen {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

// pickModel runs the picker call and returns the chosen id, or "" on any failure.
func (rt *Router) pickModel(ctx context.Context, req Request, pool []string) string {
	provider, err := rt.registry.ForModel(rt.routing.Picker)
	if err != nil {
		slog.Debug("picker provider unavailable", "picker", rt.routing.Picker, "error", err)
		return ""
	}

	excerpt := req.Prompt
	if len(excerpt) > pickerPromptChars {
		excerpt = excerpt[:pickerPromptChars]
	}

	var b strings.Builder
	b.WriteString("Choose the best model for the request below. Candidates:\n")
	for _, id := range pool {
		desc := rt.routing.Description(id)
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", id, desc)
	}
	fmt.Fprintf(&b, "\nRequest:\n%s\n", excerpt)
	b.WriteString("\nAnswer with JSON only: {\"model\": \"<candidate id>\", \"reason\": \"<one sentence>\"}")

	result, err := provider.Generate(ctx, b.String(), GenerateOptions{
		Model:       rt.routing.Picker,
		Temperature: 0.0,
		MaxTokens:   256,
	})
	if err != nil {
		slog.Debug("picker call failed", "picker", rt.routing.Picker, "error", err)
		return ""
	}

	chosen, ok := llmjson.Field(result.Content, "model")
	if !ok {
		slog.Debug("picker returned unparseable choice", "output", result.Content)
		return ""
	}
	for _, id := range pool {
		if id == chosen {
			return chosen
		}
	}
	slog.Debug("picker chose a model outside the pool", "chosen", chosen)
	return ""
}

// selfHeal resets every provider backing the candidate list when all of them
// are offline, so a transient outage cannot lock the router out permanently.
func (rt *Router) selfHeal(candidates []string, traceID string) {
	seen := make(map[string]*Provider)
	for _, candidate := range candidates {
		p, err := rt.registry.ForModel(candidate)
		if err != nil {
			continue
		}
		seen[p.Name()] = p
	}
	if len(seen) == 0 {
		return
	}

	for _, p := range seen {
		if p.Status() != StatusOffline {
			return
		}
	}

	slog.Info("all candidate providers offline, resetting health", "trace_id", traceID)
	for _, p := range seen {
		p.ResetHealth()
		rt.publishRecovered(p, "self_healing", traceID)
	}
}

func (rt *Router) publishUsage(providerName, modelID string, req Request, result *GenerateResult, callErr error) {
	if rt.bus == nil {
		return
	}

	payload := events.LLMCallPayload{
		Provider:    providerName,
		Model:       modelID,
		PromptChars: len(req.Prompt),
		Success:     callErr == nil,
	}
	if result != nil {
		payload.ResponseChars = len(result.Content)
		payload.TokensInput = result.TokensInput
		payload.TokensOutput = result.TokensOutput
		payload.Duration = result.Duration
	}
	if callErr != nil {
		payload.Error = callErr.Error()
	}

	rt.bus.Publish(events.NewTypedEventWithTrace(events.SourceRouter, payload, "", req.TraceID))
}

func (rt *Router) publishOffline(p *Provider, lastErr, traceID string) {
	slog.Warn("provider went offline",
		"provider", p.Name(), "consecutive_failures", p.ConsecutiveFailures())
	if rt.bus == nil {
		return
	}
	rt.bus.Publish(events.NewTypedEventWithTrace(events.SourceRouter, events.ProviderOfflinePayload{
		Provider:            p.Name(),
		ConsecutiveFailures: p.ConsecutiveFailures(),
		LastError:           lastErr,
	}, "", traceID))
}

func (rt *Router) publishRecovered(p *Provider, reason, traceID string) {
	if rt.bus == nil {
		return
	}
	rt.bus.Publish(events.NewTypedEventWithTrace(events.SourceRouter, events.ProviderRecoveredPayload{
		Provider: p.Name(),
		Reason:   reason,
	}, "", traceID))
}
