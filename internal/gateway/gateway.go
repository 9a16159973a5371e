// Package gateway exposes the cookie-authenticated Gemini web backend as a
// stable REST service.
//
// DESIGN: The Gateway owns the session cache, the HTTP server, and the
// observability surfaces. Request flow:
//   - extract identity from the Cookie header (400 before any cache work)
//   - acquire a live session from the keyed cache (single-flight creation)
//   - map the REST call onto an upstream operation
//   - shape the reply or translate the failure into the wire taxonomy
//
// FILES:
//   - gateway.go:    Gateway struct, routing, lifecycle
//   - cookies.go:    identity extraction
//   - sessions.go:   keyed session cache
//   - handlers.go:   endpoint handlers
//   - respond.go:    response shaping
//   - errors.go:     error taxonomy
//   - attachments.go: multipart staging
//   - middleware.go: CORS, request ids, loopback guard
//   - stats.go / dashboard.go / events.go: operational surfaces
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geminiweb/gemini-gateway/internal/config"
	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
	"github.com/geminiweb/gemini-gateway/internal/monitoring"
)

// Gateway is the HTTP service core.
type Gateway struct {
	config   *config.Config
	sessions *SessionStore
	metrics  *monitoring.MetricsCollector
	tracker  *monitoring.Tracker
	history  *monitoring.History
	events   *monitoring.EventHub
	tokens   *monitoring.TokenEstimator
	server   *http.Server
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithSessionFactory substitutes the upstream session constructor. Tests use
// this to drive handlers against stub sessions.
func WithSessionFactory(factory SessionFactory) Option {
	return func(g *Gateway) {
		g.sessions.factory = factory
	}
}

// New creates a Gateway from config.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.TelemetryPath != "",
		LogPath:     cfg.Monitoring.TelemetryPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating telemetry tracker: %w", err)
	}

	var history *monitoring.History
	if cfg.Monitoring.HistoryDBPath != "" {
		history, err = monitoring.OpenHistory(cfg.Monitoring.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("opening request history: %w", err)
		}
	}

	g := &Gateway{
		config:  cfg,
		metrics: monitoring.NewMetricsCollector(),
		tracker: tracker,
		history: history,
		events:  monitoring.NewEventHub(config.EventBufferSize),
		tokens:  monitoring.NewTokenEstimator(),
	}

	factory := func(id Identity) Session {
		return liveSession{geminiweb.NewClient(id.PSID, id.PSIDTS,
			geminiweb.WithTimeout(cfg.Upstream.RequestTimeout),
			geminiweb.WithProxy(cfg.Upstream.Proxy),
		)}
	}
	g.sessions = NewSessionStore(factory, cfg.Upstream.InitTimeout, g.metrics, g.tracker)

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Handler returns the routed handler, so tests can drive the gateway with
// httptest without opening a listener.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/models", g.handleModels)
	mux.HandleFunc("/generate", g.handleGenerate)
	mux.HandleFunc("/chat", g.handleChat)
	mux.HandleFunc("/generate-image", g.handleGenerateImage)
	mux.HandleFunc("/test-image-gen", g.handleTestImageGen)
	mux.HandleFunc("/edit-image", g.handleEditImage)
	mux.HandleFunc("/generate-with-files", g.handleGenerateWithFiles)
	mux.HandleFunc("/download-image", g.handleDownloadImage)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/dashboard", g.handleDashboard)
	mux.HandleFunc("/events", g.handleEvents)

	return corsMiddleware(g.requestIDMiddleware(mux))
}

// Start runs the HTTP server until Shutdown or a listener error.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:         g.config.Server.Addr(),
		Handler:      g.Handler(),
		ReadTimeout:  g.config.Server.ReadTimeout,
		WriteTimeout: g.config.Server.WriteTimeout,
	}

	g.tracker.RecordInit(&monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "gateway_start",
		ServerPort:           g.config.Server.Port,
		ServerReadTimeoutMs:  g.config.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: g.config.Server.WriteTimeout.Milliseconds(),
		InitTimeoutMs:        g.config.Upstream.InitTimeout.Milliseconds(),
		UpstreamProxy:        g.config.Upstream.Proxy,
		TelemetryPath:        g.config.Monitoring.TelemetryPath,
		HistoryDBPath:        g.config.Monitoring.HistoryDBPath,
	})

	log.Info().Str("addr", g.server.Addr).Msg("gateway listening")
	return g.server.ListenAndServe()
}

// Shutdown drains the HTTP server, then closes every live session exactly
// once and releases the observability stores.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var err error
	if g.server != nil {
		err = g.server.Shutdown(ctx)
	}

	g.sessions.ShutdownAll()

	if g.history != nil {
		if cerr := g.history.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing request history")
		}
	}
	_ = g.tracker.Close()

	return err
}

// Sessions exposes the session store for lifecycle tests.
func (g *Gateway) Sessions() *SessionStore {
	return g.sessions
}
