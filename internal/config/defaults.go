// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER DEFAULTS
// =============================================================================

// DefaultServerHost is the bind address for the HTTP server.
const DefaultServerHost = "0.0.0.0"

// DefaultServerPort is the HTTP listen port.
const DefaultServerPort = 8000

// DefaultServerReadTimeout bounds reading a request, including large
// multipart uploads.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server. Generation calls can run
// for minutes, so this is deliberately generous.
const DefaultServerWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed JSON request body (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// MaxUploadSize is the maximum allowed multipart upload (50MB).
const MaxUploadSize = 50 * 1024 * 1024

// MultipartMemoryLimit is how much of a multipart body is held in memory
// before spilling to disk.
const MultipartMemoryLimit = 32 * 1024 * 1024

// =============================================================================
// UPSTREAM SESSION DEFAULTS
// =============================================================================

// DefaultInitTimeout bounds upstream session initialization. Sessions are
// created without auto-refresh or auto-close; the cache owns their lifetime.
const DefaultInitTimeout = 30 * time.Second

// DefaultUpstreamTimeout is the HTTP client timeout for generation calls.
const DefaultUpstreamTimeout = 5 * time.Minute

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DownloadCacheMaxAge is the Cache-Control max-age (seconds) for proxied
// image downloads.
const DownloadCacheMaxAge = 3600

// =============================================================================
// MONITORING DEFAULTS
// =============================================================================

// DefaultHistoryLimit is how many request-history rows the stats surface
// reads back by default.
const DefaultHistoryLimit = 200

// EventBufferSize is the per-subscriber buffer for the live event feed.
// Slow subscribers drop events rather than blocking request handling.
const EventBufferSize = 64
