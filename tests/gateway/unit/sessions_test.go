package unit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geminiweb/gemini-gateway/internal/gateway"
	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
)

// countingFactory hands out fresh stub sessions and counts creations.
type countingFactory struct {
	created  atomic.Int64
	mu       sync.Mutex
	sessions []*stubSession
	template func() *stubSession
}

func (f *countingFactory) make(_ gateway.Identity) gateway.Session {
	f.created.Add(1)
	var s *stubSession
	if f.template != nil {
		s = f.template()
	} else {
		s = &stubSession{}
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s
}

func newStore(f *countingFactory) *gateway.SessionStore {
	return gateway.NewSessionStore(f.make, 5*time.Second, nil, nil)
}

func TestAcquire_SamePairReusesLiveSession(t *testing.T) {
	f := &countingFactory{}
	store := newStore(f)
	id := gateway.Identity{PSID: "psid-a", PSIDTS: "ts-a"}

	first, reused, err := store.Acquire(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, reused)

	second, reused, err := store.Acquire(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, reused)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), f.created.Load())
	assert.Equal(t, 1, store.Len())
}

func TestAcquire_DistinctPairsGetDistinctSessions(t *testing.T) {
	f := &countingFactory{}
	store := newStore(f)

	a, _, err := store.Acquire(context.Background(), gateway.Identity{PSID: "psid-a", PSIDTS: "ts-1"})
	require.NoError(t, err)
	b, _, err := store.Acquire(context.Background(), gateway.Identity{PSID: "psid-a", PSIDTS: "ts-2"})
	require.NoError(t, err)
	c, _, err := store.Acquire(context.Background(), gateway.Identity{PSID: "psid-a"})
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, store.Len())
}

func TestAcquire_EmptySecondaryCollapsesToAbsent(t *testing.T) {
	// A present-but-empty secondary cookie and no secondary cookie produce
	// the same cache key, so they share one session.
	withEmpty := gateway.Identity{PSID: "psid-a", PSIDTS: ""}
	without := gateway.Identity{PSID: "psid-a"}
	assert.Equal(t, withEmpty.CacheKey(), without.CacheKey())

	f := &countingFactory{}
	store := newStore(f)

	a, _, err := store.Acquire(context.Background(), withEmpty)
	require.NoError(t, err)
	b, reused, err := store.Acquire(context.Background(), without)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.True(t, reused)
	assert.Equal(t, int64(1), f.created.Load())
}

func TestAcquire_InitFailureLeavesNoEntry(t *testing.T) {
	initErr := &geminiweb.AuthError{Reason: "cookies rejected"}
	f := &countingFactory{template: func() *stubSession {
		return &stubSession{initErr: initErr}
	}}
	store := newStore(f)
	id := gateway.Identity{PSID: "psid-bad"}

	_, _, err := store.Acquire(context.Background(), id)
	var authErr *geminiweb.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 0, store.Len(), "failed creation must not leave a cache entry")

	// The next acquire starts clean rather than observing a poisoned slot.
	_, _, err = store.Acquire(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, int64(2), f.created.Load())
}

func TestAcquire_DeadSessionEvictedAndRecreated(t *testing.T) {
	f := &countingFactory{}
	store := newStore(f)
	id := gateway.Identity{PSID: "psid-a"}

	first, _, err := store.Acquire(context.Background(), id)
	require.NoError(t, err)

	firstStub := first.(*stubSession)
	firstStub.markDead()

	second, reused, err := store.Acquire(context.Background(), id)
	require.NoError(t, err)

	assert.False(t, reused)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, store.Len())
	// Eviction is not a close: the dead session's owner already lost it.
	assert.Equal(t, 0, firstStub.closeCount())
}

func TestAcquire_SingleFlightCreation(t *testing.T) {
	f := &countingFactory{template: func() *stubSession {
		return &stubSession{initDelay: 50 * time.Millisecond}
	}}
	store := newStore(f)
	id := gateway.Identity{PSID: "psid-a"}

	const concurrency = 10
	results := make([]gateway.Session, concurrency)
	errs := make([]error, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = store.Acquire(context.Background(), id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int64(1), f.created.Load(), "concurrent acquirers must share one handshake")
	assert.Equal(t, 1, store.Len())
}

func TestAcquire_FailedSingleFlightSharedByWaiters(t *testing.T) {
	f := &countingFactory{template: func() *stubSession {
		return &stubSession{initDelay: 30 * time.Millisecond, initErr: errors.New("backend unreachable")}
	}}
	store := newStore(f)
	id := gateway.Identity{PSID: "psid-a"}

	const concurrency = 4
	errs := make([]error, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = store.Acquire(context.Background(), id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < concurrency; i++ {
		require.Error(t, errs[i])
	}
	assert.Equal(t, int64(1), f.created.Load())
	assert.Equal(t, 0, store.Len())
}

func TestShutdownAll_ClosesEachLiveSessionExactlyOnce(t *testing.T) {
	f := &countingFactory{}
	store := newStore(f)

	a, _, err := store.Acquire(context.Background(), gateway.Identity{PSID: "psid-a"})
	require.NoError(t, err)
	b, _, err := store.Acquire(context.Background(), gateway.Identity{PSID: "psid-b"})
	require.NoError(t, err)

	store.ShutdownAll()

	assert.Equal(t, 1, a.(*stubSession).closeCount())
	assert.Equal(t, 1, b.(*stubSession).closeCount())
	assert.Equal(t, 0, store.Len(), "cache must be empty after shutdown")

	// Idempotent: a second pass finds nothing to close.
	store.ShutdownAll()
	assert.Equal(t, 1, a.(*stubSession).closeCount())
}
