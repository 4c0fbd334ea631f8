// Package scheduler submits recurring tasks to the queue on cron or
// interval triggers.
package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one persistent schedule: a prompt submitted to a thread on every
// trigger.
type Entry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Prompt      string     `json:"prompt"`
	ThreadID    string     `json:"thread_id,omitempty"` // default: a thread per entry
	Model       string     `json:"model,omitempty"`
	CronSpec    string     `json:"cron_spec,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	CooldownSec int        `json:"cooldown_sec,omitempty"`
	MaxRuns     int        `json:"max_runs,omitempty"` // 0 = unlimited
	RunCount    int        `json:"run_count"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
}

// GenerateScheduleID creates a unique schedule identifier.
func GenerateScheduleID() string {
	u := uuid.New().String()
	return "sched_" + strings.ReplaceAll(u[:8], "-", "")
}
