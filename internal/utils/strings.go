// Package utils provides common utility functions.
package utils

// MaskToken masks a session cookie value for safe logging (shows first 8
// and last 4 chars). Cookie values authenticate the caller upstream and
// must never appear in logs in full.
func MaskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) < 16 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// MaskTokenShort masks a token showing only first 4 and last 4 chars.
// Compact form for telemetry fields.
func MaskTokenShort(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
