// Package gateway - cookies.go extracts the caller's upstream identity.
//
// DESIGN: The gateway never issues credentials. Every request carries the
// caller's own Gemini cookies in the Cookie header; the pair is the cache
// key for the session store. Parsing is deliberately literal: split on ";",
// trim, prefix match. No cookie-jar semantics, no decoding.
package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/geminiweb/gemini-gateway/internal/utils"
)

const (
	cookiePSID   = "__Secure-1PSID"
	cookiePSIDTS = "__Secure-1PSIDTS"
)

// ErrMissingIdentity reports a request without the mandatory primary cookie.
var ErrMissingIdentity = errors.New("missing required cookie: " + cookiePSID)

// Identity is one caller's upstream credential pair. PSIDTS may be empty;
// an empty-but-present secondary collapses to the absent form, so the two
// spellings share a cache entry.
type Identity struct {
	PSID   string
	PSIDTS string
}

// identityFromRequest parses the raw Cookie header(s). The primary cookie is
// mandatory; its absence fails before any session work happens.
func identityFromRequest(r *http.Request) (Identity, error) {
	var id Identity
	for _, header := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(header, ";") {
			part = strings.TrimSpace(part)
			switch {
			case strings.HasPrefix(part, cookiePSID+"="):
				id.PSID = part[len(cookiePSID)+1:]
			case strings.HasPrefix(part, cookiePSIDTS+"="):
				id.PSIDTS = part[len(cookiePSIDTS)+1:]
			}
		}
	}
	if id.PSID == "" {
		return Identity{}, ErrMissingIdentity
	}
	return id, nil
}

// CacheKey returns the session cache key for this pair. The secondary slot
// is the empty string when the cookie is absent.
func (id Identity) CacheKey() string {
	return id.PSID + ":" + id.PSIDTS
}

// maskedKey is the log/telemetry form of the cache key. Raw cookie values
// never reach logs.
func (id Identity) maskedKey() string {
	if id.PSIDTS == "" {
		return utils.MaskTokenShort(id.PSID)
	}
	return utils.MaskTokenShort(id.PSID) + ":" + utils.MaskTokenShort(id.PSIDTS)
}
