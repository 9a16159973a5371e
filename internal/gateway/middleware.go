// Package gateway - middleware.go carries the HTTP plumbing.
package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/geminiweb/gemini-gateway/internal/monitoring"
)

// HeaderRequestID is the inbound/outbound request id header.
const HeaderRequestID = "X-Request-ID"

// requestIDMiddleware assigns every request an id: the caller's header when
// present, a fresh UUID otherwise. The id rides the context and the response.
func (g *Gateway) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(monitoring.WithRequestID(r.Context(), id)))
	})
}

// corsMiddleware is the permissive allow-all layer: browser callers hold
// their own cookies, so there is nothing origin-specific to protect here.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie, "+HeaderRequestID)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getRequestID returns the request's id from context, generating one if the
// middleware was bypassed (direct handler tests).
func (g *Gateway) getRequestID(r *http.Request) string {
	if id := monitoring.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// isLoopback reports whether remoteAddr is a loopback address. Operational
// surfaces are restricted to localhost.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// clientIP extracts the caller's IP for telemetry fields.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
