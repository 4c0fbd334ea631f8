// Package queue owns tasks and threads: it persists them, accepts
// submissions, and runs the worker pool that feeds queued tasks to the
// orchestrator.
package queue

import (
	"fmt"
	"time"

	"github.com/tbaudier/overseer/internal/orchestrator"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is one unit of work. Status only ever moves queued→running→
// {completed,failed}; StartedAt and CompletedAt are each set exactly once,
// at the corresponding transition.
type Task struct {
	ID          string                        `json:"id"`
	ThreadID    string                        `json:"thread_id"`
	Prompt      string                        `json:"prompt"`
	Status      TaskStatus                    `json:"status"`
	CreatedAt   time.Time                     `json:"created_at"`
	StartedAt   *time.Time                    `json:"started_at,omitempty"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	WorkerID    string                        `json:"worker_id,omitempty"`
	Result      *orchestrator.ExecutionResult `json:"result,omitempty"`
	Error       string                        `json:"error,omitempty"`
	Metadata    map[string]string             `json:"metadata,omitempty"`
}

// markRunning transitions a queued task to running.
func (t *Task) markRunning(workerID string) error {
	if t.Status != TaskQueued {
		return fmt.Errorf("task %s: cannot start from status %s", t.ID, t.Status)
	}
	now := time.Now()
	t.Status = TaskRunning
	t.StartedAt = &now
	t.WorkerID = workerID
	return nil
}

// markDone transitions a running task to its terminal state.
func (t *Task) markDone(result *orchestrator.ExecutionResult, errText string) error {
	if t.Status != TaskRunning {
		return fmt.Errorf("task %s: cannot finish from status %s", t.ID, t.Status)
	}
	now := time.Now()
	t.CompletedAt = &now
	t.Result = result
	if errText != "" {
		t.Status = TaskFailed
		t.Error = errText
	} else {
		t.Status = TaskCompleted
	}
	return nil
}

// ThreadMode controls what a thread's tasks are allowed to do.
type ThreadMode string

const (
	ThreadModeAuto     ThreadMode = "auto"     // full orchestration
	ThreadModeChatOnly ThreadMode = "chatOnly" // direct replies only
)

// ContextMode controls how much thread history precedes each prompt.
type ContextMode string

const (
	ContextNone  ContextMode = "none"  // raw prompt only
	ContextFull  ContextMode = "full"  // every prior completed task
	ContextSmart ContextMode = "smart" // last ContextWindow completed tasks
)

// ThreadSettings tune context resolution for a thread's tasks.
type ThreadSettings struct {
	ContextMode   ContextMode `json:"context_mode"`
	ContextWindow int         `json:"context_window"`
}

// Thread groups tasks into a conversation. TaskIDs is append-only, in
// submission order; entries may dangle if a task record is lost, and
// lookups tolerate that.
type Thread struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	TaskIDs   []string       `json:"task_ids"`
	Mode      ThreadMode     `json:"mode"`
	Settings  ThreadSettings `json:"settings"`
	IsDeleted bool           `json:"is_deleted,omitempty"`
}

func newThread(id, title string) *Thread {
	if title == "" {
		title = "Thread " + id
	}
	now := time.Now()
	return &Thread{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Mode:      ThreadModeAuto,
		Settings:  ThreadSettings{ContextMode: ContextSmart, ContextWindow: 5},
	}
}
