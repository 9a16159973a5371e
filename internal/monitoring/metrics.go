// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:       Total and successful request counts
//   - sessions:                 Cache lifecycle (created/reused/evicted/closed)
//   - images:                   Retry attempts and images returned
//   - bytes_proxied:            Download proxy traffic
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64

	// Session cache counters
	sessionsCreated atomic.Int64
	sessionsReused  atomic.Int64
	sessionsEvicted atomic.Int64
	sessionsClosed  atomic.Int64
	initFailures    atomic.Int64

	// Image counters
	imageRetryAttempts atomic.Int64
	imagesReturned     atomic.Int64
	bytesProxied       atomic.Int64

	// Token counters (estimates; the upstream reports no usage)
	promptTokens   atomic.Int64
	responseTokens atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordRequest records a request.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordSessionCreated records a fresh upstream session initialization.
func (mc *MetricsCollector) RecordSessionCreated() { mc.sessionsCreated.Add(1) }

// RecordSessionReused records a cache hit on a live session.
func (mc *MetricsCollector) RecordSessionReused() { mc.sessionsReused.Add(1) }

// RecordSessionEvicted records removal of a dead session from the cache.
func (mc *MetricsCollector) RecordSessionEvicted() { mc.sessionsEvicted.Add(1) }

// RecordSessionClosed records a close during bulk shutdown.
func (mc *MetricsCollector) RecordSessionClosed() { mc.sessionsClosed.Add(1) }

// RecordInitFailure records a rejected session initialization.
func (mc *MetricsCollector) RecordInitFailure() { mc.initFailures.Add(1) }

// RecordImageRetry records attempts spent in the template retry loop and
// how many images the winning attempt returned.
func (mc *MetricsCollector) RecordImageRetry(attempts, images int) {
	mc.imageRetryAttempts.Add(int64(attempts))
	mc.imagesReturned.Add(int64(images))
}

// RecordBytesProxied records download proxy traffic.
func (mc *MetricsCollector) RecordBytesProxied(n int) { mc.bytesProxied.Add(int64(n)) }

// RecordTokens records estimated prompt/response token counts.
func (mc *MetricsCollector) RecordTokens(prompt, response int) {
	mc.promptTokens.Add(int64(prompt))
	mc.responseTokens.Add(int64(response))
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()

	created := mc.sessionsCreated.Load()
	reused := mc.sessionsReused.Load()
	var reuseRate float64
	if total := created + reused; total > 0 {
		reuseRate = float64(reused) / float64(total) * 100
	}

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
		},
		Sessions: SessionStats{
			Created:      created,
			Reused:       reused,
			Evicted:      mc.sessionsEvicted.Load(),
			Closed:       mc.sessionsClosed.Load(),
			InitFailures: mc.initFailures.Load(),
			ReuseRate:    reuseRate,
		},
		Images: ImageStats{
			RetryAttempts: mc.imageRetryAttempts.Load(),
			Returned:      mc.imagesReturned.Load(),
			BytesProxied:  mc.bytesProxied.Load(),
		},
		Tokens: TokenStats{
			PromptTokens:   mc.promptTokens.Load(),
			ResponseTokens: mc.responseTokens.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartedAt     string       `json:"started_at"`
	Requests      RequestStats `json:"requests"`
	Sessions      SessionStats `json:"sessions"`
	Images        ImageStats   `json:"images"`
	Tokens        TokenStats   `json:"tokens"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// SessionStats holds session cache lifecycle metrics.
type SessionStats struct {
	Created      int64   `json:"created"`
	Reused       int64   `json:"reused"`
	Evicted      int64   `json:"evicted"`
	Closed       int64   `json:"closed"`
	InitFailures int64   `json:"init_failures"`
	ReuseRate    float64 `json:"reuse_rate"`
}

// ImageStats holds image generation and proxy metrics.
type ImageStats struct {
	RetryAttempts int64 `json:"retry_attempts"`
	Returned      int64 `json:"returned"`
	BytesProxied  int64 `json:"bytes_proxied"`
}

// TokenStats holds estimated token counts.
type TokenStats struct {
	PromptTokens   int64 `json:"prompt_tokens"`
	ResponseTokens int64 `json:"response_tokens"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
