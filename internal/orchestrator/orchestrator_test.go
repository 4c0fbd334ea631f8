package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/intent"
	"github.com/tbaudier/overseer/internal/memory"
	"github.com/tbaudier/overseer/internal/providers"
)

type fakeRouter struct {
	resp  providers.Response
	calls int
}

func (f *fakeRouter) CallWithFailover(_ context.Context, _ providers.Request) *providers.Response {
	f.calls++
	r := f.resp
	return &r
}

type fakeAnalyzer struct {
	analysis intent.Analysis
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string) *intent.Analysis {
	a := f.analysis
	return &a
}

// fakeFactory replays scripted agent outcomes, one per attempt, and records
// the specs and attempt contexts it was handed.
type fakeFactory struct {
	outcomes []AgentResult
	spawnErr error
	specs    []AgentSpec
	attempts []AttemptContext
	runs     int
}

func (f *fakeFactory) Spawn(_ context.Context, spec AgentSpec, attempt AttemptContext) (Agent, error) {
	f.specs = append(f.specs, spec)
	f.attempts = append(f.attempts, attempt)
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	return &fakeAgent{factory: f}, nil
}

type fakeAgent struct {
	factory *fakeFactory
}

func (a *fakeAgent) Run(_ context.Context) (*AgentResult, error) {
	i := a.factory.runs
	a.factory.runs++
	if i >= len(a.factory.outcomes) {
		i = len(a.factory.outcomes) - 1
	}
	res := a.factory.outcomes[i]
	return &res, nil
}

type fakeForge struct {
	tool *memory.ToolRecord
	err  error
}

func (f *fakeForge) GenerateTool(_ context.Context, _ string, _ map[string]string) (*memory.ToolRecord, error) {
	return f.tool, f.err
}

type fakeEpisodic struct {
	records []memory.Record
	err     error
}

func (f *fakeEpisodic) Search(_ context.Context, _ string, _ int, _ string) ([]memory.Record, error) {
	return f.records, f.err
}

type fakeKnowledge struct {
	tools map[string][]string
}

func (f *fakeKnowledge) ToolsByDomain(domain string) ([]string, error) {
	return f.tools[domain], nil
}

func TestChatProducesSingleDirectResponse(t *testing.T) {
	router := &fakeRouter{resp: providers.Response{Success: true, Content: "4"}}
	o := New(Options{
		Router:   router,
		Analyzer: &fakeAnalyzer{analysis: intent.Analysis{Kind: intent.KindChat, Confidence: 0.9}},
	})

	result := o.ProcessMessage(context.Background(), "What is 2+2?", ProcessOptions{})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Response != "4" {
		t.Errorf("response = %q, want 4", result.Response)
	}
	if len(result.ActionsTaken) != 1 || result.ActionsTaken[0] != string(ActionDirectResponse) {
		t.Errorf("actions = %v, want exactly one directResponse", result.ActionsTaken)
	}
	if len(result.ToolsForged) != 0 || len(result.AgentsSpawned) != 0 {
		t.Error("chat must forge no tools and spawn no agents")
	}
	if result.TraceID == "" {
		t.Error("a trace id should be assigned when none is given")
	}
}

func TestDirectResponseFailureSurfacesError(t *testing.T) {
	router := &fakeRouter{resp: providers.Response{Success: false, Error: "all providers down"}}
	o := New(Options{
		Router:   router,
		Analyzer: &fakeAnalyzer{analysis: intent.Analysis{Kind: intent.KindChat}},
	})

	result := o.ProcessMessage(context.Background(), "hi", ProcessOptions{})
	if result.Success {
		t.Fatal("expected failure when routing fails")
	}
	if result.Error == "" {
		t.Error("result error should carry the cause")
	}
}

func TestSystemStatusReportsProviders(t *testing.T) {
	registry := providers.NewRegistry(config.ProvidersConfig{
		Default: "a",
		Registry: map[string]config.ProviderConfig{
			"a": {Driver: "anthropic", Model: "model-a"},
		},
	}, nil)
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: intent.Analysis{Kind: intent.KindSystem}},
		Status:   registry,
	})

	result := o.ProcessMessage(context.Background(), "status?", ProcessOptions{})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if !contains(result.Response, "a: healthy") {
		t.Errorf("response = %q, want provider health listing", result.Response)
	}
}

func TestQueryMemoryCountsRecords(t *testing.T) {
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: intent.Analysis{Kind: intent.KindQuery}},
		Episodic: &fakeEpisodic{records: []memory.Record{
			{MemoryID: "m1", Summary: "past csv work"},
			{MemoryID: "m2", Summary: "more csv work"},
		}},
	})

	result := o.ProcessMessage(context.Background(), "find csv work", ProcessOptions{})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.MemoriesQueried != 2 {
		t.Errorf("memories queried = %d, want 2", result.MemoriesQueried)
	}
	if !contains(result.Response, "past csv work") {
		t.Errorf("response should list memory summaries, got %q", result.Response)
	}
}

func TestCreateForgesTool(t *testing.T) {
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: intent.Analysis{Kind: intent.KindCreate, Domain: "data"}},
		Forge: &fakeForge{tool: &memory.ToolRecord{
			Name: "csv_parser", Domain: "data", ValidationStatus: "passed",
		}},
	})

	result := o.ProcessMessage(context.Background(), "build a csv parser", ProcessOptions{})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if len(result.ToolsForged) != 1 || result.ToolsForged[0] != "csv_parser" {
		t.Errorf("tools forged = %v, want [csv_parser]", result.ToolsForged)
	}
}

func TestForgeFailureSurfaces(t *testing.T) {
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: intent.Analysis{Kind: intent.KindCreate}},
		Forge:    &fakeForge{err: errors.New("validation failed")},
	})

	result := o.ProcessMessage(context.Background(), "build it", ProcessOptions{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if !contains(result.Error, "validation failed") {
		t.Errorf("error = %q, want the forge cause", result.Error)
	}
}

func TestExecuteForgesOnlyWhenToolUnknown(t *testing.T) {
	analysis := intent.Analysis{
		Kind: intent.KindExecute, Domain: "data",
		RequiresTool: true, ToolName: "csv_parser",
	}

	known := &fakeKnowledge{tools: map[string][]string{"data": {"csv_parser"}}}
	o := New(Options{Analyzer: &fakeAnalyzer{analysis: analysis}, Knowledge: known})
	plan := o.buildPlan("t", "run it", &analysis)
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != ActionSpawnAgent {
		t.Errorf("known tool: actions = %v, want [spawnAgent]", plan.ActionKinds())
	}

	unknown := &fakeKnowledge{tools: map[string][]string{}}
	o = New(Options{Analyzer: &fakeAnalyzer{analysis: analysis}, Knowledge: unknown})
	plan = o.buildPlan("t", "run it", &analysis)
	if len(plan.Actions) != 2 ||
		plan.Actions[0].Kind != ActionForgeTool || plan.Actions[1].Kind != ActionSpawnAgent {
		t.Errorf("unknown tool: actions = %v, want [forgeTool spawnAgent]", plan.ActionKinds())
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
