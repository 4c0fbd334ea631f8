package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/events"
)

// threeProviderConfig wires providers a, b, c serving model-a, model-b,
// model-c with the agent priority order [a, b, c].
func threeProviderConfig() config.ProvidersConfig {
	return config.ProvidersConfig{
		Default: "a",
		Registry: map[string]config.ProviderConfig{
			"a": {Driver: "anthropic", Model: "model-a", MaxRetries: 3},
			"b": {Driver: "openai", Model: "model-b", MaxRetries: 3},
			"c": {Driver: "ollama", Model: "model-c", MaxRetries: 3},
		},
		Models: map[string]string{
			"model-a": "a",
			"model-b": "b",
			"model-c": "c",
		},
		AgentPriority: []string{"model-a", "model-b", "model-c"},
		ChatPriority:  []string{"model-a"},
	}
}

func TestFailoverStopsAtFirstSuccess(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {err: errors.New("a is down")},
		"b": {err: errors.New("b is down")},
		"c": {reply: "from c"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	router := NewRouter(registry, nil, nil)

	resp := router.CallWithFailover(context.Background(), Request{
		Prompt: "do the thing",
		Type:   RequestAgent,
	})

	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.Content != "from c" || resp.Model != "model-c" || resp.Provider != "c" {
		t.Errorf("resp = %q model=%s provider=%s, want from c/model-c/c",
			resp.Content, resp.Model, resp.Provider)
	}
	if fakes["a"].callCount() != 1 || fakes["b"].callCount() != 1 || fakes["c"].callCount() != 1 {
		t.Errorf("call counts a=%d b=%d c=%d, want 1 each",
			fakes["a"].callCount(), fakes["b"].callCount(), fakes["c"].callCount())
	}
}

func TestFailoverRecordsHealth(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {err: errors.New("down")},
		"b": {reply: "ok"},
		"c": {reply: "ok"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	router := NewRouter(registry, nil, nil)

	router.CallWithFailover(context.Background(), Request{Prompt: "x", Type: RequestAgent})

	a, _ := registry.Get("a")
	if a.Status() != StatusDegraded {
		t.Errorf("a status = %s, want degraded", a.Status())
	}
	b, _ := registry.Get("b")
	if b.Status() != StatusHealthy {
		t.Errorf("b status = %s, want healthy", b.Status())
	}
	if fakes["c"].callCount() != 0 {
		t.Errorf("c was called %d times after b succeeded, want 0", fakes["c"].callCount())
	}
}

func TestConcreteModelUsedAlone(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {reply: "from a"},
		"b": {reply: "from b"},
		"c": {reply: "from c"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	router := NewRouter(registry, nil, nil)

	resp := router.CallWithFailover(context.Background(), Request{
		Prompt: "x",
		Type:   RequestAgent,
		Model:  "model-b",
	})

	if !resp.Success || resp.Model != "model-b" {
		t.Fatalf("resp success=%v model=%s, want success on model-b", resp.Success, resp.Model)
	}
	if fakes["a"].callCount() != 0 || fakes["c"].callCount() != 0 {
		t.Error("concrete model request must not touch other candidates")
	}
}

func TestSkipOfflineProvider(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {reply: "from a"},
		"b": {reply: "from b"},
		"c": {reply: "from c"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	router := NewRouter(registry, nil, nil)

	a, _ := registry.Get("a")
	for range 3 {
		a.RecordFailure()
	}
	if a.Status() != StatusOffline {
		t.Fatal("setup: expected a offline")
	}

	resp := router.CallWithFailover(context.Background(), Request{Prompt: "x", Type: RequestAgent})
	if !resp.Success || resp.Provider != "b" {
		t.Errorf("resp provider = %s, want b (a is offline)", resp.Provider)
	}
	if fakes["a"].callCount() != 0 {
		t.Error("offline provider must be skipped, not attempted")
	}
}

func TestSelfHealingResetsAllOfflineCandidates(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {reply: "recovered"},
		"b": {reply: "ok"},
		"c": {reply: "ok"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	bus := events.NewBus(16)
	router := NewRouter(registry, nil, bus)

	for _, name := range []string{"a", "b", "c"} {
		p, _ := registry.Get(name)
		for range 3 {
			p.RecordFailure()
		}
	}

	resp := router.CallWithFailover(context.Background(), Request{Prompt: "x", Type: RequestAgent})
	if !resp.Success {
		t.Fatalf("expected success after self-healing reset, got %q", resp.Error)
	}
	if resp.Provider != "a" {
		t.Errorf("resp provider = %s, want a (first in priority after reset)", resp.Provider)
	}

	for _, name := range []string{"b", "c"} {
		p, _ := registry.Get(name)
		if p.Status() != StatusHealthy {
			t.Errorf("provider %s status = %s after reset, want healthy", name, p.Status())
		}
	}
}

func TestTotalFailureCarriesLastError(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {err: errors.New("a broke")},
		"b": {err: errors.New("b broke")},
		"c": {err: errors.New("c broke")},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	router := NewRouter(registry, nil, nil)

	resp := router.CallWithFailover(context.Background(), Request{Prompt: "x", Type: RequestAgent})
	if resp.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(resp.Error, "c broke") {
		t.Errorf("error = %q, want the last candidate's error", resp.Error)
	}
}

func TestAutoRoutePickerChoosesModel(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a":      {reply: "from a"},
		"b":      {reply: "from b"},
		"c":      {reply: "from c"},
		"picker": {reply: `{"model": "model-b", "reason": "best fit for code"}`},
	}
	cfg := threeProviderConfig()
	cfg.Registry["picker"] = config.ProviderConfig{Driver: "ollama", Model: "picker-model"}
	cfg.Models["picker-model"] = "picker"

	registry := NewRegistry(cfg, factoryFor(fakes))
	routing := &config.RoutingConfig{
		Picker: "picker-model",
		Agent: []config.RouteCandidate{
			{Model: "model-a", Description: "general purpose"},
			{Model: "model-b", Description: "code specialist"},
			{Model: "model-c", Description: "fast and cheap"},
		},
	}
	router := NewRouter(registry, routing, nil)

	resp := router.CallWithFailover(context.Background(), Request{
		Prompt: "write a parser",
		Type:   RequestAgent,
		Model:  ModelAuto,
	})

	if !resp.Success || resp.Model != "model-b" {
		t.Fatalf("resp model = %s (success=%v), want model-b", resp.Model, resp.Success)
	}
	if fakes["picker"].callCount() != 1 {
		t.Errorf("picker called %d times, want 1", fakes["picker"].callCount())
	}
	if !strings.Contains(fakes["picker"].lastPrompt(), "code specialist") {
		t.Error("picker prompt should list candidate descriptions")
	}
	if fakes["a"].callCount() != 0 {
		t.Error("picker's choice should be attempted first, not the pool head")
	}
}

func TestAutoRouteFallsBackOnBadPickerOutput(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a":      {reply: "from a"},
		"b":      {reply: "from b"},
		"picker": {reply: "I think you should use something nice"},
	}
	cfg := threeProviderConfig()
	delete(cfg.Registry, "c")
	delete(cfg.Models, "model-c")
	cfg.Registry["picker"] = config.ProviderConfig{Driver: "ollama", Model: "picker-model"}
	cfg.Models["picker-model"] = "picker"

	registry := NewRegistry(cfg, factoryFor(fakes))
	routing := &config.RoutingConfig{
		Picker: "picker-model",
		Agent: []config.RouteCandidate{
			{Model: "model-a"},
			{Model: "model-b"},
		},
	}
	router := NewRouter(registry, routing, nil)

	resp := router.CallWithFailover(context.Background(), Request{
		Prompt: "x",
		Type:   RequestAgent,
		Model:  ModelAuto,
	})

	if !resp.Success || resp.Model != "model-a" {
		t.Errorf("resp model = %s, want pool head model-a on unparseable picker output", resp.Model)
	}
}

func TestAutoRouteIgnoresDisabledCandidates(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {reply: "from a"},
		"b": {reply: "from b"},
	}
	cfg := threeProviderConfig()
	delete(cfg.Registry, "c")
	delete(cfg.Models, "model-c")

	registry := NewRegistry(cfg, factoryFor(fakes))
	routing := &config.RoutingConfig{
		Agent: []config.RouteCandidate{
			{Model: "model-a", Disabled: true},
			{Model: "model-b"},
		},
	}
	router := NewRouter(registry, routing, nil)

	resp := router.CallWithFailover(context.Background(), Request{
		Prompt: "x",
		Type:   RequestAgent,
		Model:  ModelAuto,
	})

	if !resp.Success || resp.Model != "model-b" {
		t.Errorf("resp model = %s, want model-b (model-a disabled)", resp.Model)
	}
	if fakes["a"].callCount() != 0 {
		t.Error("disabled candidate must never be attempted")
	}
}

func TestAutoRouteWithEmptyPoolUsesPriority(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {reply: "from a"},
		"b": {reply: "from b"},
		"c": {reply: "from c"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	router := NewRouter(registry, nil, nil)

	resp := router.CallWithFailover(context.Background(), Request{
		Prompt: "x",
		Type:   RequestAgent,
		Model:  ModelAuto,
	})

	if !resp.Success || resp.Model != "model-a" {
		t.Errorf("resp model = %s, want priority head model-a", resp.Model)
	}
}

func TestRouterPublishesUsageEvents(t *testing.T) {
	fakes := map[string]*fakeModel{
		"a": {reply: "ok"},
		"b": {reply: "ok"},
		"c": {reply: "ok"},
	}
	registry := NewRegistry(threeProviderConfig(), factoryFor(fakes))
	bus := events.NewBus(16)
	router := NewRouter(registry, nil, bus)

	router.CallWithFailover(context.Background(), Request{
		Prompt:  "hello",
		Type:    RequestChat,
		TraceID: "trace-1",
	})

	// Dispatch is asynchronous; poll until the event lands in history.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var found bool
		for _, e := range bus.History(10) {
			if e.Type != events.EventLLMCall {
				continue
			}
			payload, ok := events.GetLLMCallPayload(e)
			if !ok {
				t.Fatal("llm call event with unreadable payload")
			}
			if e.TraceID != "trace-1" {
				t.Fatalf("event trace id = %q, want trace-1", e.TraceID)
			}
			if payload.Provider == "a" && payload.Success && payload.TokensInput == 10 {
				found = true
			}
		}
		if found {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a successful llm call event for provider a")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
