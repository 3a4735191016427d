// Package syncutil provides keyed synchronization primitives.
package syncutil

import "sync"

// InflightGate tracks at most one in-flight operation per key. Unlike a
// per-key mutex, acquisition never blocks: a second caller for the same key
// is told the key is busy and can back off instead of racing.
type InflightGate struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewInflightGate creates an empty gate.
func NewInflightGate() *InflightGate {
	return &InflightGate{inflight: make(map[string]struct{})}
}

// TryAcquire claims the key. Returns false if an operation for the key is
// already in flight. On success the caller MUST call Release when done.
func (g *InflightGate) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[key]; busy {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// Release frees the key for the next caller.
func (g *InflightGate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// Inflight reports the number of keys currently claimed.
func (g *InflightGate) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
