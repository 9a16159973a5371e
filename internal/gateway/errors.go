// Package gateway - errors.go translates upstream failures into the wire
// taxonomy.
//
// DESIGN: Handlers never leak typed upstream errors; every failure leaves as
// {"error":{"message": <detail>, "type": <class>}} with a fixed status:
//   400 missing_identity   request lacked the mandatory primary cookie
//   400 bad_request        malformed body/form/query
//   401 auth_rejected      upstream rejected or invalidated the cookie pair
//   500 <operation class>  everything else, detail prefixed per operation
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
)

const (
	errTypeMissingIdentity = "missing_identity"
	errTypeBadRequest      = "bad_request"
	errTypeAuthRejected    = "auth_rejected"
	errTypeUpstream        = "upstream_error"
	errTypeImageGeneration = "image_generation_failed"
	errTypeAttachment      = "attachment_failed"
	errTypeProxyFetch      = "proxy_fetch_failed"
)

// missingIdentityDetail is part of the wire contract; existing callers match
// on this exact message.
const missingIdentityDetail = "Missing required cookie: __Secure-1PSID. " +
	"Please provide Gemini cookies in the Cookie header."

// errorEnvelope is the uniform error body.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeErrorEnvelope writes the uniform JSON error response.
func writeErrorEnvelope(w http.ResponseWriter, status int, errType, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{Message: detail, Type: errType},
	})
}

// upstreamErrorClass maps an upstream error to (status, type). Auth failures
// are 401 everywhere; anything else is a 500 carrying the handler's
// operation class.
func upstreamErrorClass(err error, fallbackType string) (int, string) {
	var authErr *geminiweb.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, errTypeAuthRejected
	}
	return http.StatusInternalServerError, fallbackType
}
