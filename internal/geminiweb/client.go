// Upstream client core: cookie handshake, access token extraction, and the
// generate call shared by single-turn and chat flows.
//
// FILES:
//   - client.go:   Client, options, Init/Close, liveness
//   - generate.go: request payload build and response parse (gjson/sjson)
//   - chat.go:     multi-turn ChatSession
//   - upload.go:   attachment staging upload
//   - models.go:   model selectors
//   - types.go:    parsed output model
package geminiweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"
)

const (
	hostGemini       = "https://gemini.google.com"
	endpointInit     = hostGemini + "/app"
	endpointGenerate = hostGemini + "/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate"
	endpointUpload   = "https://content-push.googleapis.com/upload"

	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uploadPushID = "feeds/mcudyrk2a4khkz"

	cookiePSID   = "__Secure-1PSID"
	cookiePSIDTS = "__Secure-1PSIDTS"
)

// accessTokenRe extracts the interaction token from the app shell. Every
// generate call must echo this token in the "at" form field.
var accessTokenRe = regexp.MustCompile(`"SNlM0e":"(.*?)"`)

// Client is a live handle to the Gemini web backend for one cookie pair.
// It performs no auto-refresh and no auto-close; the owner controls its
// lifetime explicitly via Init and Close.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration

	mu          sync.RWMutex
	cookies     map[string]string
	accessToken string
	running     bool
	reqID       int
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout for generation calls.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		client.timeout = timeout
		client.httpClient.Timeout = timeout
	}
}

// WithProxy routes outbound traffic through the given proxy URL.
// Invalid URLs are ignored and the client connects directly.
func WithProxy(proxyURL string) ClientOption {
	return func(client *Client) {
		if proxyURL == "" {
			return
		}
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		client.httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	}
}

// NewClient creates a client for the given cookie pair. psidts may be empty.
// The client is not usable until Init succeeds.
func NewClient(psid, psidts string, opts ...ClientOption) *Client {
	cookies := map[string]string{cookiePSID: psid}
	if psidts != "" {
		cookies[cookiePSIDTS] = psidts
	}

	c := &Client{
		cookies: cookies,
		timeout: 5 * time.Minute,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Init fetches the app shell with the supplied cookies and extracts the
// access token. On success the liveness flag is set and the full
// post-handshake cookie set is recorded. A rejected cookie pair returns
// *AuthError.
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointInit, nil)
	if err != nil {
		return &APIError{Operation: "init", Message: "building request", Err: err}
	}
	c.applyHeaders(req)
	c.applyCookies(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &TimeoutExceeded{Operation: "init"}
		}
		return &AuthError{Reason: "reaching backend", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Reason: fmt.Sprintf("app shell returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Reason: "reading app shell", Err: err}
	}

	match := accessTokenRe.FindSubmatch(body)
	if match == nil {
		return &AuthError{Reason: "no access token in app shell; cookies are invalid or expired"}
	}

	c.mu.Lock()
	c.accessToken = string(match[1])
	for _, ck := range resp.Cookies() {
		if ck.Value != "" {
			c.cookies[ck.Name] = ck.Value
		}
	}
	c.running = true
	c.mu.Unlock()

	return nil
}

// Running reports the liveness flag. A protocol-level auth failure during
// generation clears it, marking the session for eviction by its owner.
func (c *Client) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Close clears the liveness flag and session state. It never fails; the
// backend holds no per-connection state worth a farewell call.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.accessToken = ""
	return nil
}

// Cookies returns a copy of the full current cookie set, including cookies
// picked up during the handshake. The download proxy needs all of them.
func (c *Client) Cookies() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.cookies))
	for k, v := range c.cookies {
		out[k] = v
	}
	return out
}

// markDead clears the liveness flag after an out-of-band invalidation.
func (c *Client) markDead() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// nextReqID returns a monotonically bumped request id for the _reqid query
// parameter, mirroring what the web frontend sends.
func (c *Client) nextReqID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reqID == 0 {
		c.reqID = 100000 + int(time.Now().UnixNano()%100000)
	}
	c.reqID += 100000
	return c.reqID
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", hostGemini)
	req.Header.Set("Referer", hostGemini+"/")
}

func (c *Client) applyCookies(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}
