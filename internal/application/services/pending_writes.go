package services

import (
	"sync"
)

// PendingWrites tracks entity ids whose update is currently on the wire. The realtime bridge
// consults it to drop echoes of our own writes. Ids are refcounted so overlapping writes to the
// same row keep it suppressed until the last one settles.
type PendingWrites struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewPendingWrites creates an empty tracker
func NewPendingWrites() *PendingWrites {
	return &PendingWrites{counts: make(map[string]int)}
}

// Begin marks id as in flight. The returned release func must be called once the remote call
// settles; extra calls are ignored.
func (p *PendingWrites) Begin(id string) func() {
	p.mu.Lock()
	p.counts[id]++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.counts[id] <= 1 {
				delete(p.counts, id)
				return
			}
			p.counts[id]--
		})
	}
}

// Has reports whether a write for id is in flight
func (p *PendingWrites) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[id] > 0
}

// Len returns the number of distinct ids in flight
func (p *PendingWrites) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts)
}
