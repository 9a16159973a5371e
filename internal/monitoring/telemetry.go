// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - RequestEvent: Every request through the gateway
//   - SessionEvent: Session cache lifecycle transitions
//   - InitEvent:    Gateway startup (dedicated init.jsonl)
//
// Events are appended to files immediately after each event for real-time logging.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config         TelemetryConfig
	requestLogPath string
	initLogPath    string
	requestCount   int
	mu             sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.requestLogPath = cfg.LogPath
	t.initLogPath = filepath.Join(filepath.Dir(cfg.LogPath), "init.jsonl")

	// Create empty files if they don't exist
	for _, path := range []string{t.requestLogPath, t.initLogPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if f, err := os.Create(path); err == nil { // #nosec G304 -- operator-configured log path
				_ = f.Close()
			}
		}
	}

	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// RecordRequest records a request event.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("path", event.Path).
			Int("status", event.StatusCode).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.requestLogPath != "" {
		if err := appendJSONL(t.requestLogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.requestLogPath).Msg("telemetry: failed to write request event")
		} else {
			t.requestCount++
		}
	}
}

// RecordSession records a session lifecycle event.
func (t *Tracker) RecordSession(event *SessionEvent) {
	if !t.config.Enabled || t.requestLogPath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.requestLogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.requestLogPath).Msg("telemetry: failed to write session event")
	}
}

// RecordInit records a gateway initialization event to a dedicated init JSONL.
func (t *Tracker) RecordInit(event *InitEvent) {
	if !t.config.Enabled || t.initLogPath == "" || event == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.initLogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.initLogPath).Msg("telemetry: failed to write init event")
	}
}

// Close is kept for interface compatibility.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.requestLogPath != "" && t.requestCount > 0 {
		log.Info().
			Str("path", t.requestLogPath).
			Int("events", t.requestCount).
			Msg("telemetry: session complete")
	}

	return nil
}
