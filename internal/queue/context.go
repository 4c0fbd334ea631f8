package queue

import (
	"fmt"
	"log/slog"
	"strings"
)

// contextualize resolves a task's prompt according to its thread's context
// mode: none sends the raw prompt, full prepends every prior completed task
// as alternating turns, smart prepends only the last ContextWindow of them.
func (m *Manager) contextualize(task *Task) string {
	thread, err := m.store.GetThread(task.ThreadID)
	if err != nil || thread == nil {
		if err != nil {
			slog.Warn("context resolution failed, sending raw prompt",
				"task_id", task.ID, "error", err)
		}
		return task.Prompt
	}

	mode := thread.Settings.ContextMode
	if mode == ContextNone || mode == "" {
		return task.Prompt
	}

	history := m.completedBefore(thread, task.ID)
	if mode == ContextSmart {
		window := thread.Settings.ContextWindow
		if window <= 0 {
			window = 5
		}
		if len(history) > window {
			history = history[len(history)-window:]
		}
	}
	if len(history) == 0 {
		return task.Prompt
	}

	var b strings.Builder
	b.WriteString("Prior conversation:\n")
	for _, prior := range history {
		fmt.Fprintf(&b, "User: %s\n", prior.Prompt)
		if prior.Result != nil && prior.Result.Response != "" {
			fmt.Fprintf(&b, "Assistant: %s\n", prior.Result.Response)
		}
	}
	fmt.Fprintf(&b, "\nCurrent message:\n%s", task.Prompt)
	return b.String()
}

// completedBefore returns the thread's completed tasks submitted before the
// given task, in submission order.
func (m *Manager) completedBefore(thread *Thread, taskID string) []*Task {
	var out []*Task
	for _, id := range thread.TaskIDs {
		if id == taskID {
			break
		}
		prior, err := m.store.GetTask(id)
		if err != nil || prior == nil {
			continue
		}
		if prior.Status == TaskCompleted {
			out = append(out, prior)
		}
	}
	return out
}
