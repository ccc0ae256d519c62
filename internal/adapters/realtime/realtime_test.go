package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/classboard/core/internal/adapters/memory"
	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

func receive(t *testing.T, ch <-chan ports.Change) ports.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("feed closed")
		}
		return c
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	return ports.Change{}
}

func waitClosed(t *testing.T, ch <-chan ports.Change) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed still open")
		}
	}
}

func TestHubDeliversPerBoard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(4, nil)

	b1, _ := hub.Subscribe(ctx, ports.Subscription{BoardID: "b1"})
	b2, _ := hub.Subscribe(ctx, ports.Subscription{BoardID: "b2"})

	hub.Publish(ctx, ports.Change{Table: ports.TablePosts, Event: ports.EventDelete, BoardID: "b1", ID: "p1"})

	assert.Equal(t, receive(t, b1).ID, "p1")
	select {
	case <-b2:
		t.Fatal("other board received the change")
	default:
	}
}

func TestHubClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(4, nil)
	ch, _ := hub.Subscribe(ctx, ports.Subscription{BoardID: "b1"})
	assert.Equal(t, hub.Subscribers("b1"), 1)

	cancel()

	waitClosed(t, ch)
	assert.Equal(t, hub.Subscribers("b1"), 0)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(1, nil)
	ch, _ := hub.Subscribe(ctx, ports.Subscription{BoardID: "b1"})

	hub.Publish(ctx, ports.Change{BoardID: "b1", ID: "1"})
	hub.Publish(ctx, ports.Change{BoardID: "b1", ID: "2"})

	assert.Equal(t, receive(t, ch).ID, "1")
	waitClosed(t, ch)
	assert.Equal(t, hub.Subscribers("b1"), 0)
}

func TestPublishingStorageEmitsBoardScopedChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(16, nil)
	store := NewPublishingStorage(memory.NewStorage(), hub, nil)

	board, err := store.Boards().Insert(ctx, entities.Board{OwnerID: "u1", Title: "Physics", BackgroundColor: "#fff", ViewMode: entities.ViewModeCanvas})
	assert.Equal(t, err, nil)
	feed, _ := hub.Subscribe(ctx, ports.Subscription{BoardID: board.ID})

	post, err := store.Posts().Insert(ctx, entities.Post{BoardID: board.ID, AuthorID: "u1", Content: "hi"})
	assert.Equal(t, err, nil)
	insert := receive(t, feed)
	assert.Equal(t, insert.Table, ports.TablePosts)
	assert.Equal(t, insert.Event, ports.EventInsert)
	assert.Equal(t, insert.BoardID, board.ID)
	row, err := ports.DecodeRow[entities.Post](insert)
	assert.Equal(t, err, nil)
	assert.Equal(t, row.Content, "hi")

	assert.Equal(t, store.Posts().Update(ctx, post.ID, ports.Fields{"pos_x": 40.0}), nil)
	update := receive(t, feed)
	assert.Equal(t, update.Event, ports.EventUpdate)
	row, _ = ports.DecodeRow[entities.Post](update)
	assert.Equal(t, row.PosX, 40.0)

	reaction, err := store.Reactions().Insert(ctx, entities.Reaction{PostID: post.ID, UserID: "u2", Emoji: "🔥"})
	assert.Equal(t, err, nil)
	added := receive(t, feed)
	assert.Equal(t, added.Table, ports.TableReactions)
	assert.Equal(t, added.BoardID, board.ID)

	assert.Equal(t, store.Reactions().Delete(ctx, reaction.ID), nil)
	removed := receive(t, feed)
	assert.Equal(t, removed.Event, ports.EventDelete)
	assert.Equal(t, removed.ID, reaction.ID)
	assert.Equal(t, removed.BoardID, board.ID)
	assert.Equal(t, len(removed.Row), 0)
}

func TestPublishingStorageSkipsFailedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(16, nil)
	store := NewPublishingStorage(memory.NewStorage(), hub, nil)
	feed, _ := hub.Subscribe(ctx, ports.Subscription{BoardID: "b1"})

	_, err := store.Posts().Insert(ctx, entities.Post{BoardID: "b1", AuthorID: "u1"})
	assert.NotEqual(t, err, nil)
	assert.NotEqual(t, store.Posts().Delete(ctx, "missing"), nil)

	select {
	case c := <-feed:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(20 * time.Millisecond):
	}
}
