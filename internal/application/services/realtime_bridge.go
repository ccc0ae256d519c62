package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// BridgeState is the lifecycle of the realtime subscription
type BridgeState string

const (
	BridgeInactive      BridgeState = "inactive"
	BridgeSubscribing   BridgeState = "subscribing"
	BridgeActive        BridgeState = "active"
	BridgeResubscribing BridgeState = "resubscribing"
	BridgeDropped       BridgeState = "dropped"
	BridgeClosed        BridgeState = "closed"
)

// ReconnectPolicy controls resubscription after the change channel drops
type ReconnectPolicy struct {
	Enabled bool
	Min     time.Duration
	Max     time.Duration
}

// DefaultReconnectPolicy retries from 500ms up to 30s
var DefaultReconnectPolicy = ReconnectPolicy{Enabled: true, Min: 500 * time.Millisecond, Max: 30 * time.Second}

// RealtimeBridge feeds post and reaction changes for one board into the local stores. Updates
// for ids with a local write in flight are dropped by the post store.
type RealtimeBridge struct {
	feed      ports.ChangeFeed
	posts     *PostStore
	reactions *ReactionStore
	policy    ReconnectPolicy
	logger    *logger.Logger
	metrics   ports.SyncMetrics

	mu        sync.Mutex
	state     BridgeState
	boardID   string
	cancel    context.CancelFunc
	done      chan struct{}
	onApplied func(ports.Change)
}

// NewRealtimeBridge creates an inactive bridge
func NewRealtimeBridge(feed ports.ChangeFeed, posts *PostStore, reactions *ReactionStore, policy ReconnectPolicy, log *logger.Logger, metrics ports.SyncMetrics) *RealtimeBridge {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if policy.Min <= 0 {
		policy.Min = DefaultReconnectPolicy.Min
	}
	if policy.Max < policy.Min {
		policy.Max = policy.Min
	}
	return &RealtimeBridge{
		feed:      feed,
		posts:     posts,
		reactions: reactions,
		policy:    policy,
		logger:    log.WithComponent("realtime_bridge"),
		metrics:   metrics,
		state:     BridgeInactive,
	}
}

// OnApplied registers a callback invoked after each change that altered local state
func (b *RealtimeBridge) OnApplied(fn func(ports.Change)) {
	b.mu.Lock()
	b.onApplied = fn
	b.mu.Unlock()
}

// State returns the current lifecycle state
func (b *RealtimeBridge) State() BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BoardID returns the board the bridge is subscribed to
func (b *RealtimeBridge) BoardID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boardID
}

func (b *RealtimeBridge) setState(state BridgeState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

// Activate subscribes to boardID, closing any previous subscription first
func (b *RealtimeBridge) Activate(ctx context.Context, boardID string) error {
	b.mu.Lock()
	previous := b.boardID
	b.mu.Unlock()

	b.teardown()

	next := BridgeSubscribing
	if previous != "" {
		next = BridgeResubscribing
	}
	b.mu.Lock()
	b.state = next
	b.boardID = boardID
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	changes, err := b.feed.Subscribe(subCtx, ports.Subscription{BoardID: boardID})
	if err != nil {
		cancel()
		b.mu.Lock()
		b.state = BridgeInactive
		b.boardID = ""
		b.mu.Unlock()
		return fmt.Errorf("subscribe to board %s: %w", boardID, err)
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.state = BridgeActive
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	b.logger.Infow("Realtime subscription active", "board_id", boardID)
	go b.run(subCtx, boardID, changes, done)
	return nil
}

// Close tears the subscription down; the bridge can be activated again afterwards
func (b *RealtimeBridge) Close() {
	b.teardown()
	b.mu.Lock()
	b.state = BridgeClosed
	b.boardID = ""
	b.mu.Unlock()
}

func (b *RealtimeBridge) teardown() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (b *RealtimeBridge) run(ctx context.Context, boardID string, changes <-chan ports.Change, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if ok {
				b.Handle(change)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if !b.policy.Enabled {
				b.logger.Warnw("Realtime channel dropped", "board_id", boardID)
				b.setState(BridgeDropped)
				return
			}
			changes = b.resubscribe(ctx, boardID)
			if changes == nil {
				return
			}
		}
	}
}

// resubscribe retries with exponential backoff and re-fetches posts and reactions once the
// channel is back, since changes in between were missed.
func (b *RealtimeBridge) resubscribe(ctx context.Context, boardID string) <-chan ports.Change {
	b.setState(BridgeResubscribing)
	backoff := b.policy.Min

	for {
		b.logger.Infow("Resubscribing", "board_id", boardID, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		changes, err := b.feed.Subscribe(ctx, ports.Subscription{BoardID: boardID})
		if err != nil {
			b.logger.Warnw("Resubscribe failed", "board_id", boardID, "error", err.Error())
			backoff *= 2
			if backoff > b.policy.Max {
				backoff = b.policy.Max
			}
			continue
		}

		b.setState(BridgeActive)
		b.metrics.Resubscribed()
		if err := b.posts.Refetch(ctx); err != nil {
			b.logger.Warnw("Refetch posts after resubscribe failed", "error", err.Error())
		}
		if err := b.reactions.Refetch(ctx); err != nil {
			b.logger.Warnw("Refetch reactions after resubscribe failed", "error", err.Error())
		}
		return changes
	}
}

// Handle applies one notification and reports whether local state changed. Notifications for
// other boards or other tables are ignored.
func (b *RealtimeBridge) Handle(change ports.Change) bool {
	b.mu.Lock()
	boardID, onApplied := b.boardID, b.onApplied
	b.mu.Unlock()

	if boardID == "" || change.BoardID != boardID {
		return false
	}

	applied, err := b.apply(change)
	if err != nil {
		b.logger.Warnw("Dropping malformed change", "table", change.Table, "event", change.Event, "error", err.Error())
	}
	b.metrics.RemoteChange(change.Table, change.Event, applied)
	if applied && onApplied != nil {
		onApplied(change)
	}
	return applied
}

func (b *RealtimeBridge) apply(change ports.Change) (bool, error) {
	switch change.Table {
	case ports.TablePosts:
		switch change.Event {
		case ports.EventInsert:
			post, err := ports.DecodeRow[entities.Post](change)
			if err != nil {
				return false, err
			}
			return b.posts.ApplyRemoteInsert(post), nil
		case ports.EventUpdate:
			post, err := ports.DecodeRow[entities.Post](change)
			if err != nil {
				return false, err
			}
			return b.posts.ApplyRemoteUpdate(post), nil
		case ports.EventDelete:
			return b.posts.ApplyRemoteDelete(change.ID), nil
		}
	case ports.TableReactions:
		switch change.Event {
		case ports.EventInsert:
			reaction, err := ports.DecodeRow[entities.Reaction](change)
			if err != nil {
				return false, err
			}
			return b.reactions.ApplyRemoteInsert(reaction), nil
		case ports.EventDelete:
			return b.reactions.ApplyRemoteDelete(change.ID), nil
		}
	}
	return false, nil
}
