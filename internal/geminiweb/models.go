// Package geminiweb is a client for the cookie-authenticated Gemini web
// backend. It is consumed by the gateway as an opaque session capability:
// Init, GenerateContent, StartChat/SendMessage, Close, and a liveness flag.
package geminiweb

// Model selects which backend model serves a generation call. Each model
// carries an opaque routing header value the web frontend sends verbatim.
type Model struct {
	Name   string
	Header string // x-goog-ext-525001261-jspb value; empty means no header
}

var (
	ModelUnspecified = Model{Name: "unspecified"}
	ModelG25Flash    = Model{Name: "gemini-2.5-flash", Header: `[1,null,null,null,"71c2d248d3b102ff"]`}
	ModelG25Pro      = Model{Name: "gemini-2.5-pro", Header: `[1,null,null,null,"2525e3954d185b3c"]`}
	ModelG30Pro      = Model{Name: "gemini-3.0-pro", Header: `[1,null,null,null,"9d8ca3786738027e"]`}
)

// DefaultModel is what unrecognized selectors fall back to.
var DefaultModel = ModelG25Flash

var modelsByName = map[string]Model{
	ModelUnspecified.Name: ModelUnspecified,
	ModelG25Flash.Name:    ModelG25Flash,
	ModelG25Pro.Name:      ModelG25Pro,
	ModelG30Pro.Name:      ModelG30Pro,
}

// ModelFromName maps a caller-supplied selector to a Model. Unknown names
// fall back to DefaultModel rather than erroring.
func ModelFromName(name string) Model {
	if m, ok := modelsByName[name]; ok {
		return m
	}
	return DefaultModel
}

// ModelInfo describes a model for the capability listing endpoint.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AvailableModels lists every selectable model in display order.
func AvailableModels() []ModelInfo {
	return []ModelInfo{
		{Name: "gemini-3.0-pro", Description: "Gemini 3.0 Pro"},
		{Name: "gemini-2.5-pro", Description: "Gemini 2.5 Pro"},
		{Name: "gemini-2.5-flash", Description: "Gemini 2.5 Flash (Default)"},
		{Name: "unspecified", Description: "Unspecified model"},
	}
}
