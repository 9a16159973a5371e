// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - RequestEvent:    Telemetry data for each request
//   - SessionEvent:    Session cache lifecycle transitions
//   - InitEvent:       One-shot gateway startup record
//   - TelemetryConfig: Tracker configuration
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures a request through the gateway.
type RequestEvent struct {
	RequestID         string    `json:"request_id"`
	Timestamp         time.Time `json:"timestamp"`
	Method            string    `json:"method"`
	Path              string    `json:"path"`
	ClientIP          string    `json:"client_ip"`
	Model             string    `json:"model,omitempty"`
	ClientKey         string    `json:"client_key,omitempty"` // masked cache key, never raw cookies
	RequestBodySize   int       `json:"request_body_size"`
	ResponseBodySize  int       `json:"response_body_size"`
	StatusCode        int       `json:"status_code"`
	PromptTokens      int       `json:"prompt_tokens"`
	ResponseTokens    int       `json:"response_tokens"`
	ImageCount        int       `json:"image_count,omitempty"`
	RetryAttempts     int       `json:"retry_attempts,omitempty"` // image template loop attempts
	SessionReused     bool      `json:"session_reused"`
	Success           bool      `json:"success"`
	Error             string    `json:"error,omitempty"`
	UpstreamLatencyMs int64     `json:"upstream_latency_ms"`
	TotalLatencyMs    int64     `json:"total_latency_ms"`
}

// SessionEvent captures a session cache lifecycle transition.
type SessionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"` // created, reused, evicted, closed, init_failed
	ClientKey string    `json:"client_key"`
	Error     string    `json:"error,omitempty"`
}

// InitEvent records gateway startup configuration.
type InitEvent struct {
	Timestamp            time.Time `json:"timestamp"`
	Event                string    `json:"event"`
	ServerPort           int       `json:"server_port"`
	ServerReadTimeoutMs  int64     `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64     `json:"server_write_timeout_ms"`
	InitTimeoutMs        int64     `json:"init_timeout_ms"`
	UpstreamProxy        string    `json:"upstream_proxy,omitempty"`
	TelemetryPath        string    `json:"telemetry_path,omitempty"`
	HistoryDBPath        string    `json:"history_db_path,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig configures the JSONL tracker.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}
