// Package monitoring - history.go persists request history to SQLite.
//
// DESIGN: One row per request, written synchronously after the response is
// sent (the handler path never blocks on the database). Feeds /stats and
// the dashboard. The session cache itself is never persisted; history is
// observability data only.
package monitoring

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History is a SQLite-backed request history store.
type History struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS requests (
	id              TEXT PRIMARY KEY,
	ts              INTEGER NOT NULL,
	method          TEXT NOT NULL,
	path            TEXT NOT NULL,
	status          INTEGER NOT NULL,
	latency_ms      INTEGER NOT NULL,
	model           TEXT,
	prompt_tokens   INTEGER,
	response_tokens INTEGER,
	client_key      TEXT
);
CREATE INDEX IF NOT EXISTS idx_requests_ts ON requests(ts);
`

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &History{db: db}, nil
}

// HistoryRow is one recorded request.
type HistoryRow struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	Status         int       `json:"status"`
	LatencyMs      int64     `json:"latency_ms"`
	Model          string    `json:"model,omitempty"`
	PromptTokens   int       `json:"prompt_tokens"`
	ResponseTokens int       `json:"response_tokens"`
	ClientKey      string    `json:"client_key,omitempty"` // masked, never raw cookies
}

// Record inserts one request row.
func (h *History) Record(row HistoryRow) error {
	_, err := h.db.Exec(
		`INSERT OR REPLACE INTO requests
		 (id, ts, method, path, status, latency_ms, model, prompt_tokens, response_tokens, client_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Timestamp.UnixMilli(), row.Method, row.Path, row.Status,
		row.LatencyMs, row.Model, row.PromptTokens, row.ResponseTokens, row.ClientKey,
	)
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}
	return nil
}

// Recent returns the most recent n rows, newest first.
func (h *History) Recent(n int) ([]HistoryRow, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := h.db.Query(
		`SELECT id, ts, method, path, status, latency_ms, model, prompt_tokens, response_tokens, client_key
		 FROM requests ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var ts int64
		if err := rows.Scan(&r.ID, &ts, &r.Method, &r.Path, &r.Status,
			&r.LatencyMs, &r.Model, &r.PromptTokens, &r.ResponseTokens, &r.ClientKey); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// HistorySummary aggregates the stored history.
type HistorySummary struct {
	TotalRequests  int64   `json:"total_requests"`
	SuccessRate    float64 `json:"success_rate"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	PromptTokens   int64   `json:"prompt_tokens"`
	ResponseTokens int64   `json:"response_tokens"`
}

// Summary returns aggregate statistics over all stored rows.
func (h *History) Summary() (HistorySummary, error) {
	var s HistorySummary
	var successes int64
	err := h.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status < 400 THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(latency_ms), 0),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(response_tokens), 0)
		 FROM requests`,
	).Scan(&s.TotalRequests, &successes, &s.AvgLatencyMs, &s.PromptTokens, &s.ResponseTokens)
	if err != nil {
		return s, fmt.Errorf("summarizing history: %w", err)
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(successes) / float64(s.TotalRequests) * 100
	}
	return s, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
