// Package usage keeps the API-call ledger: one row per backend call, fed by
// the event bus. Logging is fire-and-forget; a ledger problem must never
// fail the call it accounts for.
package usage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tbaudier/overseer/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_calls (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ts             TEXT NOT NULL,
	trace_id       TEXT,
	provider       TEXT NOT NULL,
	model          TEXT NOT NULL,
	prompt_chars   INTEGER NOT NULL DEFAULT 0,
	response_chars INTEGER NOT NULL DEFAULT 0,
	tokens_input   INTEGER NOT NULL DEFAULT 0,
	tokens_output  INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	success        INTEGER NOT NULL,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_api_calls_provider ON api_calls(provider);
CREATE INDEX IF NOT EXISTS idx_api_calls_ts ON api_calls(ts);
`

// APICall is one ledger entry.
type APICall struct {
	Timestamp     time.Time
	TraceID       string
	Provider      string
	Model         string
	PromptChars   int
	ResponseChars int
	TokensInput   int
	TokensOutput  int
	Duration      time.Duration
	Success       bool
	Error         string
}

// Ledger is the sqlite-backed usage store.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// LogAPICall inserts one ledger row.
func (l *Ledger) LogAPICall(call APICall) error {
	ts := call.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO api_calls
			(ts, trace_id, provider, model, prompt_chars, response_chars,
			 tokens_input, tokens_output, duration_ms, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano), call.TraceID, call.Provider, call.Model,
		call.PromptChars, call.ResponseChars, call.TokensInput, call.TokensOutput,
		call.Duration.Milliseconds(), boolToInt(call.Success), call.Error)
	if err != nil {
		return fmt.Errorf("insert api call: %w", err)
	}
	return nil
}

// SummaryRow aggregates calls per provider and model.
type SummaryRow struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Calls        int    `json:"calls"`
	Failures     int    `json:"failures"`
	TokensInput  int    `json:"tokens_input"`
	TokensOutput int    `json:"tokens_output"`
}

// Summary returns per-provider/model aggregates, busiest first.
func (l *Ledger) Summary() ([]SummaryRow, error) {
	rows, err := l.db.Query(`
		SELECT provider, model, COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       SUM(tokens_input), SUM(tokens_output)
		FROM api_calls
		GROUP BY provider, model
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Provider, &r.Model, &r.Calls, &r.Failures,
			&r.TokensInput, &r.TokensOutput); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountCalls returns the total number of ledger rows.
func (l *Ledger) CountCalls() (int, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM api_calls`).Scan(&n)
	return n, err
}

// AttachBus subscribes the ledger to llm call events. Errors are logged and
// swallowed. Returns the unsubscribe function.
func (l *Ledger) AttachBus(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.Event) {
		payload, ok := events.GetLLMCallPayload(e)
		if !ok {
			return
		}
		err := l.LogAPICall(APICall{
			Timestamp:     e.Timestamp,
			TraceID:       e.TraceID,
			Provider:      payload.Provider,
			Model:         payload.Model,
			PromptChars:   payload.PromptChars,
			ResponseChars: payload.ResponseChars,
			TokensInput:   payload.TokensInput,
			TokensOutput:  payload.TokensOutput,
			Duration:      payload.Duration,
			Success:       payload.Success,
			Error:         payload.Error,
		})
		if err != nil {
			slog.Warn("usage ledger write failed", "error", err)
		}
	}, events.EventLLMCall)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
