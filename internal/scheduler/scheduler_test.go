package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestParseCronAndMatch(t *testing.T) {
	expr, err := ParseCron("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	at := time.Date(2026, 8, 24, 10, 15, 30, 0, time.UTC)
	if !expr.Matches(at) {
		t.Error("10:15 should match */5")
	}
	if expr.Matches(at.Add(2 * time.Minute)) {
		t.Error("10:17 should not match */5")
	}

	next := expr.Next(at)
	want := time.Date(2026, 8, 24, 10, 20, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestParseCronRejectsGarbage(t *testing.T) {
	if _, err := ParseCron("not a cron"); err == nil {
		t.Error("expected parse error")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	e := &Entry{Title: "daily digest", Prompt: "summarize the day", CronSpec: "0 8 * * *", Enabled: true}
	if err := s.Create(e); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID == "" {
		t.Fatal("Create should assign an id")
	}

	got, err := s.Get(e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != e.Title || got.CronSpec != e.CronSpec || !got.Enabled {
		t.Errorf("reloaded entry = %+v, want %+v", got, e)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List = %d entries, want 1", len(entries))
	}

	if err := s.Delete(e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if entries, _ := s.List(); len(entries) != 0 {
		t.Error("entry survived delete")
	}
}

// recordingSubmitter captures submitted prompts.
type recordingSubmitter struct {
	mu      sync.Mutex
	prompts []string
	threads []string
}

func (r *recordingSubmitter) SubmitTask(prompt, threadID, _, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	r.threads = append(r.threads, threadID)
	return "task-1", nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

func TestAddEntryValidation(t *testing.T) {
	s := New(Config{Queue: &recordingSubmitter{}})

	if err := s.AddEntry(&Entry{Prompt: "p"}); err == nil {
		t.Error("entry without a trigger must be rejected")
	}
	if err := s.AddEntry(&Entry{Prompt: "p", IntervalSec: 2}); err == nil {
		t.Error("sub-5s interval must be rejected")
	}
	if err := s.AddEntry(&Entry{CronSpec: "* * * * *"}); err == nil {
		t.Error("entry without a prompt must be rejected")
	}
	if err := s.AddEntry(&Entry{Prompt: "p", CronSpec: "bad"}); err == nil {
		t.Error("bad cron spec must be rejected")
	}
}

func TestIntervalEntryFires(t *testing.T) {
	sub := &recordingSubmitter{}
	s := New(Config{Queue: sub})

	e := &Entry{ID: "sched_x", Title: "poll", Prompt: "check things", IntervalSec: 10, CooldownSec: 10, Enabled: true}
	if err := s.AddEntry(e); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	now := time.Now()
	intervalDue := func(re *runtimeEntry) bool { return re.entry.IntervalSec > 0 }

	s.fireDue(now, intervalDue)
	if sub.count() != 1 {
		t.Fatalf("first pass fired %d times, want 1", sub.count())
	}
	if sub.threads[0] != "schedule-sched_x" {
		t.Errorf("thread id = %q, want the per-entry default", sub.threads[0])
	}

	// Within cooldown: nothing fires.
	s.fireDue(now.Add(5*time.Second), intervalDue)
	if sub.count() != 1 {
		t.Errorf("cooldown violated: fired %d times", sub.count())
	}

	// Past cooldown: fires again.
	s.fireDue(now.Add(15*time.Second), intervalDue)
	if sub.count() != 2 {
		t.Errorf("after cooldown fired %d times, want 2", sub.count())
	}
}

func TestMaxRunsStopsEntry(t *testing.T) {
	sub := &recordingSubmitter{}
	s := New(Config{Queue: sub})

	s.AddEntry(&Entry{Prompt: "once", IntervalSec: 10, CooldownSec: 5, MaxRuns: 1, Enabled: true})

	due := func(re *runtimeEntry) bool { return true }
	now := time.Now()
	s.fireDue(now, due)
	s.fireDue(now.Add(time.Hour), due)

	if sub.count() != 1 {
		t.Errorf("entry with MaxRuns=1 fired %d times", sub.count())
	}
}

func TestDisabledEntryNeverFires(t *testing.T) {
	sub := &recordingSubmitter{}
	s := New(Config{Queue: sub})

	s.AddEntry(&Entry{Prompt: "off", IntervalSec: 10, Enabled: false})
	s.fireDue(time.Now(), func(*runtimeEntry) bool { return true })

	if sub.count() != 0 {
		t.Errorf("disabled entry fired %d times", sub.count())
	}
}

func TestEntriesPersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	sub := &recordingSubmitter{}

	s1 := New(Config{Queue: sub, Store: store})
	if err := s1.AddEntry(&Entry{Title: "digest", Prompt: "p", CronSpec: "0 8 * * *", Enabled: true}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	s2 := New(Config{Queue: sub, Store: NewStore(dir)})
	s2.loadPersisted()

	entries := s2.ListEntries()
	if len(entries) != 1 || entries[0].Title != "digest" {
		t.Errorf("reloaded entries = %+v, want the persisted digest entry", entries)
	}
}
