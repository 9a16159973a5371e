package geminiweb

import "fmt"

// AuthError reports that the backend rejected the supplied cookies during
// session initialization or invalidated them mid-session.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a generic upstream failure (malformed envelope, unexpected
// status, transport error).
type APIError struct {
	Operation string
	Message   string
	Err       error
}

func (e *APIError) Error() string {
	msg := e.Operation + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// UsageLimitExceeded reports that the backend refused a request because the
// account hit the usage cap for the selected model.
type UsageLimitExceeded struct {
	ModelName string
}

func (e *UsageLimitExceeded) Error() string {
	return fmt.Sprintf("usage limit exceeded for model %q", e.ModelName)
}

// TemporarilyBlocked reports that the backend rate-limited the client IP.
type TemporarilyBlocked struct{}

func (e *TemporarilyBlocked) Error() string {
	return "access temporarily blocked, likely due to request frequency"
}

// ModelInvalid reports that the backend did not recognize the selected model.
type ModelInvalid struct {
	ModelName string
}

func (e *ModelInvalid) Error() string {
	return fmt.Sprintf("model %q rejected by backend", e.ModelName)
}

// TimeoutExceeded reports that an operation exceeded its deadline.
type TimeoutExceeded struct {
	Operation string
}

func (e *TimeoutExceeded) Error() string {
	return e.Operation + ": deadline exceeded"
}
