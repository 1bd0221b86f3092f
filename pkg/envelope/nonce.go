package envelope

import (
	"sync"
	"time"
)

// DefaultNonceWindow is twice the envelope freshness window: a nonce must
// outlive the message that carried it or a still-valid message could be
// forgotten and replayed.
const DefaultNonceWindow = 2 * DefaultMaxAge

// NonceTracker remembers nonces it has seen within a sliding window. One
// instance per communicating peer or endpoint. Eviction is lazy: it runs
// only inside Check, so the tracker never schedules background work.
type NonceTracker struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	clock  func() time.Time
}

// NewNonceTracker creates a tracker with the given eviction window.
// A non-positive window selects DefaultNonceWindow.
func NewNonceTracker(window time.Duration) *NonceTracker {
	if window <= 0 {
		window = DefaultNonceWindow
	}
	return &NonceTracker{
		seen:   make(map[string]time.Time),
		window: window,
		clock:  time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (t *NonceTracker) WithClock(clock func() time.Time) *NonceTracker {
	t.clock = clock
	return t
}

// Check evicts expired entries, then reports whether the nonce is fresh.
// A false return means replay; that is an expected outcome the caller
// branches on, not an error.
func (t *NonceTracker) Check(nonce string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	for n, firstSeen := range t.seen {
		if now.Sub(firstSeen) > t.window {
			delete(t.seen, n)
		}
	}

	if _, replayed := t.seen[nonce]; replayed {
		return false
	}
	t.seen[nonce] = now
	return true
}

// Len reports how many nonces are currently remembered.
func (t *NonceTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
