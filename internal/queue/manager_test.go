package queue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tbaudier/overseer/internal/orchestrator"
)

// fakeProcessor answers every message with a scripted result.
type fakeProcessor struct {
	result orchestrator.ExecutionResult
	seen   chan string // prompts, as received
}

func newFakeProcessor(result orchestrator.ExecutionResult) *fakeProcessor {
	return &fakeProcessor{result: result, seen: make(chan string, 16)}
}

func (f *fakeProcessor) ProcessMessage(_ context.Context, message string, _ orchestrator.ProcessOptions) *orchestrator.ExecutionResult {
	f.seen <- message
	r := f.result
	return &r
}

func newTestManager(t *testing.T, proc Processor, workers int) *Manager {
	t.Helper()
	return NewManager(newTestStore(t), proc, nil, workers)
}

// waitForStatus polls until the task reaches a terminal state.
func waitForStatus(t *testing.T, m *Manager, taskID string, want TaskStatus) *Task {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		task, err := m.GetTask(taskID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task != nil && task.Status == want {
			return task
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s never reached %s (last: %+v)", taskID, want, task)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitTaskCreatesThreadOnce(t *testing.T) {
	m := newTestManager(t, newFakeProcessor(orchestrator.ExecutionResult{Success: true}), 1)

	id1, err := m.SubmitTask("first", "th1", "My thread", "")
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	id2, err := m.SubmitTask("second", "th1", "ignored on existing", "")
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	threads, err := m.ListThreads()
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("got %d threads, want exactly 1", len(threads))
	}

	th := threads[0]
	if th.Title != "My thread" {
		t.Errorf("title = %q, want the first submission's title", th.Title)
	}
	if len(th.TaskIDs) != 2 || th.TaskIDs[0] != id1 || th.TaskIDs[1] != id2 {
		t.Errorf("task ids = %v, want [%s %s] in submission order", th.TaskIDs, id1, id2)
	}
}

func TestWorkerCompletesTask(t *testing.T) {
	proc := newFakeProcessor(orchestrator.ExecutionResult{
		Success: true, Response: "done", TraceID: "tr1",
	})
	m := newTestManager(t, proc, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	id, err := m.SubmitTask("do it", "th1", "", "")
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	task := waitForStatus(t, m, id, TaskCompleted)
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Error("timestamps must be set at the transitions")
	}
	if task.WorkerID == "" {
		t.Error("worker id must be recorded")
	}
	if task.Result == nil || task.Result.Response != "done" {
		t.Errorf("result = %+v, want the processor's result", task.Result)
	}
}

func TestWorkerRecordsFailure(t *testing.T) {
	proc := newFakeProcessor(orchestrator.ExecutionResult{
		Success: false, Error: "agent gave up",
	})
	m := newTestManager(t, proc, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	id, _ := m.SubmitTask("doomed", "th1", "", "")
	task := waitForStatus(t, m, id, TaskFailed)
	if task.Error != "agent gave up" {
		t.Errorf("error = %q, want the processor's cause", task.Error)
	}
}

func TestDeleteThreadCascades(t *testing.T) {
	m := newTestManager(t, newFakeProcessor(orchestrator.ExecutionResult{Success: true}), 1)

	var ids []string
	for _, p := range []string{"one", "two", "three"} {
		id, err := m.SubmitTask(p, "th1", "", "")
		if err != nil {
			t.Fatalf("SubmitTask: %v", err)
		}
		ids = append(ids, id)
	}

	if err := m.DeleteThread("th1"); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}

	for _, id := range ids {
		if task, _ := m.GetTask(id); task != nil {
			t.Errorf("task %s survived the cascade", id)
		}
	}
	tasks, err := m.GetThreadTasks("th1")
	if err != nil {
		t.Fatalf("GetThreadTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("GetThreadTasks after delete = %d entries, want 0", len(tasks))
	}
}

func TestThreadSettingsAndMode(t *testing.T) {
	m := newTestManager(t, newFakeProcessor(orchestrator.ExecutionResult{Success: true}), 1)

	th, err := m.CreateThread("th1", "settings")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Mode != ThreadModeAuto {
		t.Errorf("default mode = %s, want auto", th.Mode)
	}

	if err := m.UpdateThreadSettings("th1", ThreadSettings{ContextMode: ContextFull, ContextWindow: 3}); err != nil {
		t.Fatalf("UpdateThreadSettings: %v", err)
	}
	if err := m.SetThreadMode("th1", ThreadModeChatOnly); err != nil {
		t.Fatalf("SetThreadMode: %v", err)
	}

	got, _ := m.GetThread("th1")
	if got.Settings.ContextMode != ContextFull || got.Mode != ThreadModeChatOnly {
		t.Errorf("thread = %+v, want updated settings and mode", got)
	}
}

func TestContextualizeModes(t *testing.T) {
	m := newTestManager(t, newFakeProcessor(orchestrator.ExecutionResult{Success: true}), 1)

	th := newThread("th1", "ctx")
	th.TaskIDs = []string{"t1", "t2", "t3"}
	m.store.SaveThread(th)

	done := func(id, prompt, response string) {
		m.store.SaveTask(&Task{
			ID: id, ThreadID: "th1", Prompt: prompt, Status: TaskCompleted,
			CreatedAt: time.Now(),
			Result:    &orchestrator.ExecutionResult{Success: true, Response: response},
		})
	}
	done("t1", "first question", "first answer")
	done("t2", "second question", "second answer")

	current := &Task{ID: "t3", ThreadID: "th1", Prompt: "current question"}

	m.UpdateThreadSettings("th1", ThreadSettings{ContextMode: ContextNone})
	if got := m.contextualize(current); got != "current question" {
		t.Errorf("none mode = %q, want the raw prompt", got)
	}

	m.UpdateThreadSettings("th1", ThreadSettings{ContextMode: ContextFull})
	full := m.contextualize(current)
	for _, want := range []string{"first question", "first answer", "second question", "current question"} {
		if !strings.Contains(full, want) {
			t.Errorf("full mode missing %q in %q", want, full)
		}
	}

	m.UpdateThreadSettings("th1", ThreadSettings{ContextMode: ContextSmart, ContextWindow: 1})
	smart := m.contextualize(current)
	if strings.Contains(smart, "first question") {
		t.Error("smart mode with window 1 must drop the oldest turn")
	}
	if !strings.Contains(smart, "second question") {
		t.Error("smart mode with window 1 must keep the newest prior turn")
	}
}

func TestContextualizeToleratesDanglingTaskIDs(t *testing.T) {
	m := newTestManager(t, newFakeProcessor(orchestrator.ExecutionResult{Success: true}), 1)

	th := newThread("th1", "dangling")
	th.TaskIDs = []string{"ghost", "t2"}
	th.Settings = ThreadSettings{ContextMode: ContextFull}
	m.store.SaveThread(th)

	current := &Task{ID: "t2", ThreadID: "th1", Prompt: "hello"}
	if got := m.contextualize(current); got != "hello" {
		t.Errorf("dangling ids should be skipped, got %q", got)
	}
}

func TestCountInterrupted(t *testing.T) {
	m := newTestManager(t, newFakeProcessor(orchestrator.ExecutionResult{Success: true}), 1)

	m.store.SaveTask(&Task{ID: "t1", Status: TaskRunning, CreatedAt: time.Now()})
	m.store.SaveTask(&Task{ID: "t2", Status: TaskQueued, CreatedAt: time.Now()})

	n, err := m.CountInterrupted()
	if err != nil {
		t.Fatalf("CountInterrupted: %v", err)
	}
	if n != 1 {
		t.Errorf("interrupted = %d, want 1", n)
	}
}
