package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbaudier/overseer/internal/intent"
)

func executeAnalysis() intent.Analysis {
	return intent.Analysis{Kind: intent.KindExecute, Domain: "data"}
}

func TestSpawnAgentRetryBound(t *testing.T) {
	factory := &fakeFactory{outcomes: []AgentResult{
		{Success: false, Error: "boom 1"},
		{Success: false, Error: "boom 2"},
		{Success: false, Error: "boom 3"},
	}}
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: executeAnalysis()},
		Factory:  factory,
	})

	result := o.ProcessMessage(context.Background(), "run the job", ProcessOptions{})

	if result.Success {
		t.Fatal("expected failure after exhausted retries")
	}
	if factory.runs != maxAgentAttempts {
		t.Errorf("agent ran %d times, want exactly %d", factory.runs, maxAgentAttempts)
	}
	if len(result.AgentsSpawned) != 1 {
		t.Errorf("agents spawned = %v, want one entry for the delegated action", result.AgentsSpawned)
	}
	if !strings.Contains(result.Error, "boom 3") {
		t.Errorf("error = %q, want the last attempt's cause", result.Error)
	}
}

func TestSpawnAgentInjectsPreviousError(t *testing.T) {
	factory := &fakeFactory{outcomes: []AgentResult{
		{Success: false, Error: "missing input file"},
		{Success: true, Content: "EXECUTION COMPLETE\n42"},
	}}
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: executeAnalysis()},
		Factory:  factory,
	})

	result := o.ProcessMessage(context.Background(), "run the job", ProcessOptions{})
	if !result.Success {
		t.Fatalf("expected success on second attempt, got %q", result.Error)
	}

	if len(factory.attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(factory.attempts))
	}
	first, second := factory.attempts[0], factory.attempts[1]
	if first.Attempt != 1 || first.PreviousError != "" {
		t.Errorf("first attempt ctx = %+v, want attempt 1 with no previous error", first)
	}
	if second.Attempt != 2 || second.PreviousError != "missing input file" {
		t.Errorf("second attempt ctx = %+v, want attempt 2 carrying the first error", second)
	}

	if !strings.Contains(factory.specs[1].Instructions, "missing input file") {
		t.Error("second attempt's instructions should embed the previous error")
	}
	if strings.Contains(factory.specs[0].Instructions, "Previous attempt") {
		t.Error("first attempt's instructions must be the original message only")
	}
}

func TestSpawnAgentVerifiedByWorkspaceFile(t *testing.T) {
	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, "out"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "out", "report.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	factory := &fakeFactory{outcomes: []AgentResult{
		{Success: true, Content: "I wrote the summary to report.pdf for you."},
	}}
	o := New(Options{
		Analyzer:  &fakeAnalyzer{analysis: executeAnalysis()},
		Factory:   factory,
		Workspace: workspace,
	})

	result := o.ProcessMessage(context.Background(), "make a report", ProcessOptions{})
	if !result.Success {
		t.Fatalf("expected first-attempt verification, got %q", result.Error)
	}
	if factory.runs != 1 {
		t.Errorf("agent ran %d times, want 1", factory.runs)
	}
	if !strings.Contains(result.Response, "/api/files/out/report.pdf") {
		t.Errorf("response = %q, want a link to the verified artifact", result.Response)
	}
}

func TestSpawnAgentUnverifiedOutputRetriesWithDirective(t *testing.T) {
	factory := &fakeFactory{outcomes: []AgentResult{
		{Success: true, Content: "Sure, I did the thing. Everything looks fine."},
		{Success: true, Content: "EXECUTION COMPLETE\noutput: 7"},
	}}
	o := New(Options{
		Analyzer:  &fakeAnalyzer{analysis: executeAnalysis()},
		Factory:   factory,
		Workspace: t.TempDir(),
	})

	result := o.ProcessMessage(context.Background(), "compute", ProcessOptions{})
	if !result.Success {
		t.Fatalf("expected success on second attempt, got %q", result.Error)
	}
	if factory.runs != 2 {
		t.Fatalf("agent ran %d times, want 2", factory.runs)
	}
	if !strings.Contains(factory.specs[1].Instructions, "could not be verified") {
		t.Error("retry after unverified output should carry the verification directive")
	}
}

func TestSpawnAgentFailureExtractsTraceback(t *testing.T) {
	output := `Traceback (most recent call last):
  File "job.py", line 12, in <module>
    main()
ValueError: bad input shape`
	factory := &fakeFactory{outcomes: []AgentResult{
		{Success: false, Error: "exited 1", Content: output},
	}}
	o := New(Options{
		Analyzer: &fakeAnalyzer{analysis: executeAnalysis()},
		Factory:  factory,
	})

	result := o.ProcessMessage(context.Background(), "run job", ProcessOptions{})
	if result.Success {
		t.Fatal("expected failure")
	}
	for _, want := range []string{"job.py", "12", "ValueError"} {
		if !strings.Contains(result.Response, want) {
			t.Errorf("response %q should mention %q", result.Response, want)
		}
	}
}
