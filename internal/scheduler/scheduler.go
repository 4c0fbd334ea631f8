package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tbaudier/overseer/internal/events"
)

// DefaultCooldown is the minimum gap between two triggers of one entry.
const DefaultCooldown = 60 * time.Second

// TaskSubmitter enqueues a task. Satisfied by the queue manager.
type TaskSubmitter interface {
	SubmitTask(prompt, threadID, threadTitle, modelID string) (string, error)
}

// runtimeEntry is the in-memory form of an entry plus its parsed schedule.
type runtimeEntry struct {
	entry    Entry
	cron     *CronExpr
	cooldown time.Duration
	lastRun  time.Time
}

// Config holds the scheduler's dependencies.
type Config struct {
	Queue TaskSubmitter
	Bus   *events.Bus
	Store *Store // nil-safe: entries are kept in memory only without a store
}

// Scheduler runs cron and interval triggers against the task queue.
type Scheduler struct {
	queue TaskSubmitter
	bus   *events.Bus
	store *Store

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	done chan struct{}
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		queue:   cfg.Queue,
		bus:     cfg.Bus,
		store:   cfg.Store,
		entries: make(map[string]*runtimeEntry),
		done:    make(chan struct{}),
	}
}

// Start loads persisted entries and begins the trigger loops.
func (s *Scheduler) Start() {
	s.loadPersisted()
	slog.Info("scheduler started", "entries", len(s.entries))
	go s.cronLoop()
	go s.intervalLoop()
}

// Stop halts the trigger loops.
func (s *Scheduler) Stop() {
	close(s.done)
	slog.Info("scheduler stopped")
}

func (s *Scheduler) loadPersisted() {
	if s.store == nil {
		return
	}
	entries, err := s.store.List()
	if err != nil {
		slog.Warn("scheduler: load persisted entries failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		re, err := newRuntimeEntry(*e)
		if err != nil {
			slog.Warn("scheduler: skipping bad entry", "id", e.ID, "error", err)
			continue
		}
		s.entries[e.ID] = re
	}
}

func newRuntimeEntry(e Entry) (*runtimeEntry, error) {
	re := &runtimeEntry{entry: e, cooldown: time.Duration(e.CooldownSec) * time.Second}
	if re.cooldown == 0 {
		re.cooldown = DefaultCooldown
	}
	if e.CronSpec != "" {
		expr, err := ParseCron(e.CronSpec)
		if err != nil {
			return nil, err
		}
		re.cron = expr
	}
	if e.LastRunAt != nil {
		re.lastRun = *e.LastRunAt
	}
	return re, nil
}

// AddEntry registers (and persists) a schedule entry.
func (s *Scheduler) AddEntry(e *Entry) error {
	if e.Prompt == "" {
		return fmt.Errorf("schedule entry needs a prompt")
	}
	if e.CronSpec == "" && e.IntervalSec == 0 {
		return fmt.Errorf("schedule entry needs a cron spec or an interval")
	}
	if e.IntervalSec > 0 && e.IntervalSec < 5 {
		return fmt.Errorf("interval must be at least 5 seconds")
	}
	if e.ID == "" {
		e.ID = GenerateScheduleID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	re, err := newRuntimeEntry(*e)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Create(e); err != nil {
			return fmt.Errorf("persist schedule: %w", err)
		}
	}

	s.mu.Lock()
	s.entries[e.ID] = re
	s.mu.Unlock()

	slog.Info("scheduler: entry added", "id", e.ID, "title", e.Title)
	return nil
}

// RemoveEntry drops an entry from memory and the store.
func (s *Scheduler) RemoveEntry(id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("schedule entry not found: %s", id)
	}
	if s.store != nil {
		if err := s.store.Delete(id); err != nil {
			slog.Warn("scheduler: delete persisted entry failed", "id", id, "error", err)
		}
	}
	return nil
}

// ListEntries returns a snapshot of all entries.
func (s *Scheduler) ListEntries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, re := range s.entries {
		e := re.entry
		if !re.lastRun.IsZero() {
			t := re.lastRun
			e.LastRunAt = &t
		}
		out = append(out, &e)
	}
	return out
}

// cronLoop fires cron entries once per minute.
func (s *Scheduler) cronLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.fireDue(now, func(re *runtimeEntry) bool {
				return re.cron != nil && re.cron.Matches(now)
			})
		}
	}
}

// intervalLoop fires interval entries every few seconds.
func (s *Scheduler) intervalLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.fireDue(now, func(re *runtimeEntry) bool {
				if re.entry.IntervalSec <= 0 {
					return false
				}
				interval := time.Duration(re.entry.IntervalSec) * time.Second
				return re.lastRun.IsZero() || now.Sub(re.lastRun) >= interval
			})
		}
	}
}

// fireDue triggers every enabled entry that is due and out of cooldown.
func (s *Scheduler) fireDue(now time.Time, due func(*runtimeEntry) bool) {
	s.mu.Lock()
	var fire []Entry
	for _, re := range s.entries {
		if !re.entry.Enabled {
			continue
		}
		if re.entry.MaxRuns > 0 && re.entry.RunCount >= re.entry.MaxRuns {
			continue
		}
		if !re.lastRun.IsZero() && now.Sub(re.lastRun) < re.cooldown {
			continue
		}
		if due(re) {
			re.lastRun = now
			re.entry.RunCount++
			e := re.entry
			t := re.lastRun
			e.LastRunAt = &t
			fire = append(fire, e)
		}
	}
	s.mu.Unlock()

	for _, e := range fire {
		s.trigger(e)
	}
}

func (s *Scheduler) trigger(e Entry) {
	threadID := e.ThreadID
	if threadID == "" {
		threadID = "schedule-" + e.ID
	}

	taskID, err := s.queue.SubmitTask(e.Prompt, threadID, e.Title, e.Model)
	payload := events.ScheduleTriggerPayload{EntryID: e.ID, ThreadID: threadID, TaskID: taskID}
	if err != nil {
		payload.Error = err.Error()
		slog.Warn("scheduler: trigger failed", "id", e.ID, "error", err)
	} else {
		slog.Info("scheduler: entry triggered", "id", e.ID, "task_id", taskID)
	}

	if s.bus != nil {
		s.bus.Publish(events.NewTypedEventWithTrace(events.SourceScheduler, payload, threadID, ""))
	}

	if s.store != nil {
		if err := s.store.Update(&e); err != nil {
			slog.Warn("scheduler: persist run state failed", "id", e.ID, "error", err)
		}
	}
}
