package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbaudier/overseer/internal/events"
	"github.com/tbaudier/overseer/internal/orchestrator"
)

const (
	defaultWorkers   = 4
	pendingQueueSize = 4096
)

// Metadata keys carried on tasks.
const (
	metaMode  = "mode"
	metaModel = "modelId"
)

// Processor executes one contextualized prompt. Satisfied by the
// orchestrator.
type Processor interface {
	ProcessMessage(ctx context.Context, message string, opts orchestrator.ProcessOptions) *orchestrator.ExecutionResult
}

// Manager owns the task/thread collections and the worker pool. Tasks are
// dequeued in submission order, but workers run concurrently, so completion
// order across a thread is not guaranteed.
type Manager struct {
	store   *FileStore
	proc    Processor
	bus     *events.Bus
	workers int

	pending chan string // task ids, FIFO

	mu sync.Mutex // serializes thread mutations (taskIds appends, deletes)
	wg sync.WaitGroup
}

func NewManager(store *FileStore, proc Processor, bus *events.Bus, workers int) *Manager {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Manager{
		store:   store,
		proc:    proc,
		bus:     bus,
		workers: workers,
		pending: make(chan string, pendingQueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they have all drained.
func (m *Manager) Start(ctx context.Context) {
	for i := 0; i < m.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		m.wg.Add(1)
		go m.workerLoop(ctx, workerID)
	}
	slog.Info("task queue started", "workers", m.workers)
}

// Wait blocks until every worker has exited.
func (m *Manager) Wait() { m.wg.Wait() }

// SubmitTask creates a queued task, ensures its thread exists, persists
// both, and enqueues the task. Returns immediately with the task id.
func (m *Manager) SubmitTask(prompt, threadID, threadTitle, modelID string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	thread, err := m.store.GetThread(threadID)
	if err != nil {
		return "", fmt.Errorf("load thread: %w", err)
	}
	if thread == nil {
		thread = newThread(threadID, threadTitle)
		m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.ThreadCreatedPayload{
			ThreadID: thread.ID, Title: thread.Title,
		}, thread.ID, ""))
	}

	task := &Task{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Prompt:    prompt,
		Status:    TaskQueued,
		CreatedAt: time.Now(),
		Metadata:  map[string]string{metaMode: string(thread.Mode)},
	}
	if modelID != "" {
		task.Metadata[metaModel] = modelID
	}

	thread.TaskIDs = append(thread.TaskIDs, task.ID)
	thread.UpdatedAt = time.Now()

	if err := m.store.SaveTask(task); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}
	if err := m.store.SaveThread(thread); err != nil {
		return "", fmt.Errorf("persist thread: %w", err)
	}

	m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.TaskCreatedPayload{
		TaskID: task.ID, ThreadID: threadID, Prompt: prompt,
	}, threadID, ""))

	select {
	case m.pending <- task.ID:
	default:
		return "", fmt.Errorf("task queue is full")
	}
	return task.ID, nil
}

func (m *Manager) workerLoop(ctx context.Context, workerID string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-m.pending:
			m.runTask(ctx, workerID, taskID)
		}
	}
}

// runTask executes one task end to end. Persistence failures are logged and
// tolerated: an unpersisted transition beats a crashed worker.
func (m *Manager) runTask(ctx context.Context, workerID, taskID string) {
	task, err := m.store.GetTask(taskID)
	if err != nil || task == nil {
		slog.Error("dequeued task unavailable", "task_id", taskID, "error", err)
		return
	}

	log := slog.With("task_id", task.ID, "thread_id", task.ThreadID, "worker", workerID)

	if err := task.markRunning(workerID); err != nil {
		log.Error("illegal task transition", "error", err)
		return
	}
	if err := m.store.SaveTask(task); err != nil {
		log.Error("persist running state failed", "error", err)
	}
	m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.TaskStartedPayload{
		TaskID: task.ID, ThreadID: task.ThreadID, WorkerID: workerID,
	}, task.ThreadID, ""))

	prompt := m.contextualize(task)

	result := m.proc.ProcessMessage(ctx, prompt, orchestrator.ProcessOptions{
		ThreadID: task.ThreadID,
		Model:    task.Metadata[metaModel],
		ChatOnly: task.Metadata[metaMode] == string(ThreadModeChatOnly),
	})

	var errText string
	if !result.Success {
		errText = result.Error
		if errText == "" {
			errText = "request failed without detail"
		}
	}
	if err := task.markDone(result, errText); err != nil {
		log.Error("illegal task transition", "error", err)
		return
	}
	if err := m.store.SaveTask(task); err != nil {
		log.Error("persist terminal state failed", "error", err)
	}

	if task.Status == TaskCompleted {
		m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.TaskCompletedPayload{
			TaskID: task.ID, ThreadID: task.ThreadID,
			Duration: result.ExecutionTime,
		}, task.ThreadID, result.TraceID))
		log.Info("task completed", "duration", result.ExecutionTime)
	} else {
		m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.TaskFailedPayload{
			TaskID: task.ID, ThreadID: task.ThreadID, Error: errText,
		}, task.ThreadID, result.TraceID))
		log.Warn("task failed", "error", errText)
	}
}

func (m *Manager) publish(e events.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

// GetTask returns a task by id, or nil when unknown.
func (m *Manager) GetTask(taskID string) (*Task, error) {
	return m.store.GetTask(taskID)
}

// GetThreadTasks returns a thread's tasks in submission order. Dangling
// task ids are skipped.
func (m *Manager) GetThreadTasks(threadID string) ([]*Task, error) {
	thread, err := m.store.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, nil
	}

	var out []*Task
	for _, id := range thread.TaskIDs {
		task, err := m.store.GetTask(id)
		if err != nil || task == nil {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

// CreateThread explicitly creates a thread.
func (m *Manager) CreateThread(id, title string) (*Thread, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	thread := newThread(id, title)
	if err := m.store.SaveThread(thread); err != nil {
		return nil, err
	}
	m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.ThreadCreatedPayload{
		ThreadID: thread.ID, Title: thread.Title,
	}, thread.ID, ""))
	return thread, nil
}

// GetThread returns a thread by id, or nil when unknown or deleted.
func (m *Manager) GetThread(id string) (*Thread, error) {
	return m.store.GetThread(id)
}

// ListThreads returns all live threads.
func (m *Manager) ListThreads() ([]*Thread, error) {
	return m.store.ListThreads()
}

// UpdateThreadSettings replaces a thread's context settings.
func (m *Manager) UpdateThreadSettings(id string, settings ThreadSettings) error {
	return m.mutateThread(id, func(th *Thread) {
		th.Settings = settings
	})
}

// SetThreadMode switches a thread between auto and chatOnly.
func (m *Manager) SetThreadMode(id string, mode ThreadMode) error {
	return m.mutateThread(id, func(th *Thread) {
		th.Mode = mode
	})
}

func (m *Manager) mutateThread(id string, mutate func(*Thread)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, err := m.store.GetThread(id)
	if err != nil {
		return err
	}
	if thread == nil {
		return fmt.Errorf("thread not found: %s", id)
	}

	mutate(thread)
	thread.UpdatedAt = time.Now()
	return m.store.SaveThread(thread)
}

// DeleteThread removes a thread and cascades to every task it owns.
func (m *Manager) DeleteThread(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, err := m.store.GetThread(id)
	if err != nil {
		return err
	}
	if thread == nil {
		return fmt.Errorf("thread not found: %s", id)
	}

	removed := 0
	for _, taskID := range thread.TaskIDs {
		if err := m.store.DeleteTask(taskID); err != nil {
			slog.Warn("cascade delete task failed", "task_id", taskID, "error", err)
			continue
		}
		removed++
	}

	if err := m.store.RemoveThread(id); err != nil {
		return fmt.Errorf("remove thread: %w", err)
	}

	m.publish(events.NewTypedEventWithTrace(events.SourceQueue, events.ThreadDeletedPayload{
		ThreadID: id, TasksRemoved: removed,
	}, id, ""))
	return nil
}

// CountInterrupted reports tasks persisted as running by a previous process.
// They are not re-queued; the count makes the crash visible to operators.
func (m *Manager) CountInterrupted() (int, error) {
	return m.store.CountRunning()
}

// ListTasks returns every persisted task, newest first.
func (m *Manager) ListTasks() ([]*Task, error) {
	return m.store.ListTasks()
}
