package unit

import (
	"context"
	"sync"
	"time"

	"github.com/geminiweb/gemini-gateway/internal/config"
	"github.com/geminiweb/gemini-gateway/internal/gateway"
	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
)

// =============================================================================
// STUB SESSIONS
// =============================================================================

// stubSession implements gateway.Session without touching the network.
type stubSession struct {
	mu        sync.Mutex
	initErr   error
	initDelay time.Duration
	running   bool
	closes    int

	cookies      map[string]string
	generateFunc func(ctx context.Context, prompt string, model geminiweb.Model, files []string) (*geminiweb.ModelOutput, error)

	// generateCalls records every prompt and file list the session saw.
	generateCalls []generateCall
}

type generateCall struct {
	prompt string
	files  []string
}

func (s *stubSession) Init(_ context.Context) error {
	if s.initDelay > 0 {
		time.Sleep(s.initDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initErr != nil {
		return s.initErr
	}
	s.running = true
	return nil
}

func (s *stubSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.running = false
	return nil
}

func (s *stubSession) markDead() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *stubSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *stubSession) Cookies() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out
}

func (s *stubSession) GenerateContent(ctx context.Context, prompt string, model geminiweb.Model, files []string) (*geminiweb.ModelOutput, error) {
	s.mu.Lock()
	s.generateCalls = append(s.generateCalls, generateCall{prompt: prompt, files: append([]string(nil), files...)})
	fn := s.generateFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, prompt, model, files)
	}
	return textOutput("ok"), nil
}

func (s *stubSession) StartChat(model geminiweb.Model, metadata []string) gateway.ChatTurn {
	return &stubChat{session: s, model: model, metadata: append([]string(nil), metadata...)}
}

func (s *stubSession) calls() []generateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generateCall(nil), s.generateCalls...)
}

// stubChat forwards turns to the owning stub session and mimics the real
// metadata update: reply metadata plus the candidate id.
type stubChat struct {
	session  *stubSession
	model    geminiweb.Model
	metadata []string
}

func (c *stubChat) SendMessage(ctx context.Context, prompt string) (*geminiweb.ModelOutput, error) {
	out, err := c.session.GenerateContent(ctx, prompt, c.model, nil)
	if err != nil {
		return nil, err
	}
	meta := append([]string(nil), out.Metadata...)
	if rcid := out.RCID(); rcid != "" && len(meta) >= 2 {
		meta = append(meta, rcid)
	}
	c.metadata = meta
	return out, nil
}

func (c *stubChat) Metadata() []string {
	return append([]string(nil), c.metadata...)
}

// =============================================================================
// OUTPUT BUILDERS
// =============================================================================

func textOutput(text string) *geminiweb.ModelOutput {
	return &geminiweb.ModelOutput{
		Candidates: []geminiweb.Candidate{{RCID: "rc_1", Text: text}},
		Metadata:   []string{"c_1", "r_1"},
	}
}

func imageOutput(url string) *geminiweb.ModelOutput {
	return &geminiweb.ModelOutput{
		Candidates: []geminiweb.Candidate{{
			RCID: "rc_1",
			Text: "here you go",
			GeneratedImages: []geminiweb.GeneratedImage{
				{URL: url, Title: "Generated Image 1"},
			},
		}},
		Metadata: []string{"c_1", "r_1"},
	}
}

// =============================================================================
// GATEWAY CONSTRUCTION
// =============================================================================

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Monitoring.LogLevel = "error"
	cfg.Upstream.InitTimeout = 5 * time.Second
	return cfg
}

// newTestGateway builds a gateway whose session factory hands out sessions
// from the provided map (keyed by PSID), creating plain stubs for unknown
// cookies.
func newTestGateway(sessions map[string]*stubSession) (*gateway.Gateway, error) {
	return gateway.New(testConfig(), gateway.WithSessionFactory(func(id gateway.Identity) gateway.Session {
		if sessions != nil {
			if s, ok := sessions[id.PSID]; ok {
				return s
			}
		}
		return &stubSession{}
	}))
}
