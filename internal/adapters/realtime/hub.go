// Package realtime fans confirmed row changes out to board subscribers.
package realtime

import (
	"context"
	"sync"

	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

const defaultBuffer = 64

type subscriber struct {
	boardID string
	ch      chan ports.Change
}

// Hub is an in-process change feed. A subscriber that falls a full buffer behind is dropped;
// its channel closes so the client resubscribes and refetches.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	log    *logger.Logger
}

// NewHub creates a hub whose subscriber channels hold buffer changes
func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		log:    log.WithComponent("realtime_hub"),
	}
}

// Subscribe registers for changes of one board until ctx is done
func (h *Hub) Subscribe(ctx context.Context, sub ports.Subscription) (<-chan ports.Change, error) {
	s := &subscriber{boardID: sub.BoardID, ch: make(chan ports.Change, h.buffer)}

	h.mu.Lock()
	if h.subs[sub.BoardID] == nil {
		h.subs[sub.BoardID] = make(map[*subscriber]struct{})
	}
	h.subs[sub.BoardID][s] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.drop(s)
	}()

	return s.ch, nil
}

// Publish delivers change to every subscriber of its board
func (h *Hub) Publish(_ context.Context, change ports.Change) error {
	var slow []*subscriber

	h.mu.RLock()
	for s := range h.subs[change.BoardID] {
		select {
		case s.ch <- change:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.WithBoardID(change.BoardID).Warn("Dropping slow subscriber")
		h.drop(s)
	}
	return nil
}

// Subscribers reports how many feeds are open for a board
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[boardID])
}

// drop unregisters s and closes its channel once. Channels are only closed under the write
// lock so Publish never sends on a closed channel.
func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.boardID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.boardID)
	}
	close(s.ch)
}
