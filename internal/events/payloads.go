package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskCreatedPayload struct {
	TaskID   string `json:"task_id"`
	ThreadID string `json:"thread_id"`
	Prompt   string `json:"prompt"`
}

func (TaskCreatedPayload) EventType() EventType { return EventTaskCreated }

type TaskStartedPayload struct {
	TaskID   string `json:"task_id"`
	ThreadID string `json:"thread_id"`
	WorkerID string `json:"worker_id"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskCompletedPayload struct {
	TaskID          string        `json:"task_id"`
	ThreadID        string        `json:"thread_id"`
	ResponseSummary string        `json:"response_summary,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID   string `json:"task_id"`
	ThreadID string `json:"thread_id"`
	Error    string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

// =============================================================================
// THREAD EVENTS
// =============================================================================

type ThreadCreatedPayload struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
}

func (ThreadCreatedPayload) EventType() EventType { return EventThreadCreated }

type ThreadDeletedPayload struct {
	ThreadID     string `json:"thread_id"`
	TasksRemoved int    `json:"tasks_removed"`
}

func (ThreadDeletedPayload) EventType() EventType { return EventThreadDeleted }

// =============================================================================
// PROVIDER EVENTS
// =============================================================================

type ProviderOfflinePayload struct {
	Provider            string `json:"provider"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

func (ProviderOfflinePayload) EventType() EventType { return EventProviderOffline }

type ProviderRecoveredPayload struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason,omitempty"` // "success" | "self_healing"
}

func (ProviderRecoveredPayload) EventType() EventType { return EventProviderRecovered }

// =============================================================================
// INTERNAL EVENTS
// =============================================================================

// LLMCallPayload is the fire-and-forget usage side-channel: one event per
// successful (or failed) backend call, consumed by the usage ledger.
type LLMCallPayload struct {
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	PromptChars   int           `json:"prompt_chars,omitempty"`
	ResponseChars int           `json:"response_chars,omitempty"`
	TokensInput   int           `json:"tokens_input,omitempty"`
	TokensOutput  int           `json:"tokens_output,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

type ScheduleTriggerPayload struct {
	EntryID  string `json:"entry_id"`
	ThreadID string `json:"thread_id"`
	TaskID   string `json:"task_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithTrace(source EventSource, payload EventPayload, threadID, traceID string) Event {
	return Event{
		ID:        generateEventID(),
		ThreadID:  threadID,
		TraceID:   traceID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetTaskCreatedPayload(e Event) (TaskCreatedPayload, bool) {
	return ExtractPayload[TaskCreatedPayload](e)
}

func GetTaskCompletedPayload(e Event) (TaskCompletedPayload, bool) {
	return ExtractPayload[TaskCompletedPayload](e)
}

func GetTaskFailedPayload(e Event) (TaskFailedPayload, bool) {
	return ExtractPayload[TaskFailedPayload](e)
}

func GetLLMCallPayload(e Event) (LLMCallPayload, bool) {
	return ExtractPayload[LLMCallPayload](e)
}

func GetProviderOfflinePayload(e Event) (ProviderOfflinePayload, bool) {
	return ExtractPayload[ProviderOfflinePayload](e)
}
