// Package gateway - sessions.go owns the keyed cache of live upstream sessions.
//
// DESIGN: One entry per cookie pair, keyed by "psid:psidts" (empty secondary
// slot when absent). Acquire either reuses a live session, evicts a dead one
// and recreates, or creates fresh. Creation is single-flight per key: the
// first acquirer inserts an in-flight entry and runs Init; concurrent
// acquirers for the same key wait on the entry's ready channel instead of
// racing a second handshake. A failed Init removes the entry before it is
// ever visible as ready, so a bad cookie pair never poisons the cache.
//
// Sessions run with auto-refresh and auto-close off. The store is the only
// owner of their lifetime: eviction on death, Close exactly once on shutdown.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
	"github.com/geminiweb/gemini-gateway/internal/monitoring"
)

// Session is the upstream capability the gateway consumes. *geminiweb.Client
// satisfies it via liveSession; handler tests substitute stubs through the
// store's factory.
type Session interface {
	Init(ctx context.Context) error
	Running() bool
	Close() error
	Cookies() map[string]string
	GenerateContent(ctx context.Context, prompt string, model geminiweb.Model, files []string) (*geminiweb.ModelOutput, error)
	StartChat(model geminiweb.Model, metadata []string) ChatTurn
}

// ChatTurn is one multi-turn conversation handle.
type ChatTurn interface {
	SendMessage(ctx context.Context, prompt string) (*geminiweb.ModelOutput, error)
	Metadata() []string
}

// SessionFactory builds an uninitialized session for a cookie pair.
type SessionFactory func(id Identity) Session

// liveSession adapts *geminiweb.Client to the Session interface.
type liveSession struct {
	*geminiweb.Client
}

func (s liveSession) StartChat(model geminiweb.Model, metadata []string) ChatTurn {
	return s.Client.StartChat(model, metadata)
}

// sessionEntry is one cache slot. ready is closed when creation finishes;
// after that either session is live or err holds the init failure (and the
// entry is already gone from the map).
type sessionEntry struct {
	ready   chan struct{}
	session Session
	err     error
}

// SessionStore is the keyed session cache.
type SessionStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry

	factory     SessionFactory
	initTimeout time.Duration

	metrics *monitoring.MetricsCollector
	tracker *monitoring.Tracker
}

// NewSessionStore creates an empty store.
func NewSessionStore(factory SessionFactory, initTimeout time.Duration, metrics *monitoring.MetricsCollector, tracker *monitoring.Tracker) *SessionStore {
	return &SessionStore{
		entries:     make(map[string]*sessionEntry),
		factory:     factory,
		initTimeout: initTimeout,
		metrics:     metrics,
		tracker:     tracker,
	}
}

// Acquire returns a live session for the identity, creating one if needed.
// reused reports a cache hit on an already-live session. A rejected cookie
// pair surfaces the upstream *geminiweb.AuthError and leaves no cache entry.
func (s *SessionStore) Acquire(ctx context.Context, id Identity) (session Session, reused bool, err error) {
	key := id.CacheKey()

	for {
		s.mu.Lock()
		entry, ok := s.entries[key]
		if !ok {
			entry = &sessionEntry{ready: make(chan struct{})}
			s.entries[key] = entry
			s.mu.Unlock()
			sess, err := s.create(ctx, id, key, entry)
			return sess, false, err
		}
		s.mu.Unlock()

		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}

		if entry.err != nil {
			// Creation failed; the creator already removed the entry.
			return nil, false, entry.err
		}

		if entry.session.Running() {
			s.recordSession("reused", id, nil)
			return entry.session, true, nil
		}

		// Dead session: evict (not close) and recreate. Guard against a
		// racing acquirer having already replaced the slot.
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && current == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		s.recordSession("evicted", id, nil)
	}
}

// create runs the bounded handshake for a freshly inserted entry. On failure
// the entry is removed before ready closes, so waiters observe the error and
// the next acquirer starts clean.
func (s *SessionStore) create(ctx context.Context, id Identity, key string, entry *sessionEntry) (Session, error) {
	sess := s.factory(id)

	initCtx := ctx
	if s.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, s.initTimeout)
		defer cancel()
	}

	if err := sess.Init(initCtx); err != nil {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		entry.err = err
		close(entry.ready)
		s.recordSession("init_failed", id, err)
		log.Warn().Str("client", id.maskedKey()).Err(err).Msg("session init failed")
		return nil, err
	}

	entry.session = sess
	close(entry.ready)
	s.recordSession("created", id, nil)
	log.Info().Str("client", id.maskedKey()).Msg("session created")
	return sess, nil
}

// ShutdownAll closes every live session exactly once and empties the cache.
// Entries still in flight are skipped; their creator owns them until ready.
func (s *SessionStore) ShutdownAll() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*sessionEntry)
	s.mu.Unlock()

	closed := 0
	for _, entry := range entries {
		select {
		case <-entry.ready:
		default:
			continue
		}
		if entry.session == nil {
			continue
		}
		if err := entry.session.Close(); err != nil {
			log.Warn().Err(err).Msg("session close failed")
		}
		closed++
		if s.metrics != nil {
			s.metrics.RecordSessionClosed()
		}
	}
	if closed > 0 {
		log.Info().Int("sessions", closed).Msg("session cache drained")
	}
}

// Len returns the number of cache entries, in-flight included.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *SessionStore) recordSession(event string, id Identity, err error) {
	if s.metrics != nil {
		switch event {
		case "created":
			s.metrics.RecordSessionCreated()
		case "reused":
			s.metrics.RecordSessionReused()
		case "evicted":
			s.metrics.RecordSessionEvicted()
		case "init_failed":
			s.metrics.RecordInitFailure()
		}
	}
	if s.tracker != nil {
		ev := &monitoring.SessionEvent{
			Timestamp: time.Now(),
			Event:     event,
			ClientKey: id.maskedKey(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		s.tracker.RecordSession(ev)
	}
}
