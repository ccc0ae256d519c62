package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/classboard/core/internal/domain/entities"
)

func TestToggleTwiceRestoresMembership(t *testing.T) {
	storage := newFakeStorage()
	store := NewReactionStore(storage.reactions, nil, false, nil, nil)
	store.Fetch(context.Background(), "b1")

	added, err := store.Toggle(context.Background(), "p1", "👍", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, added, true)
	reaction, ok := store.Find("p1", "👍", "u1")
	assert.Equal(t, ok, true)
	assert.Equal(t, IsTempID(reaction.ID), false)

	added, err = store.Toggle(context.Background(), "p1", "👍", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, added, false)
	_, ok = store.Find("p1", "👍", "u1")
	assert.Equal(t, ok, false)
	assert.Equal(t, store.Len(), 0)
	assert.Equal(t, storage.reactions.deletes, []string{reaction.ID})
}

func TestToggleIsPerTriple(t *testing.T) {
	storage := newFakeStorage()
	storage.reactions.rows = []entities.Reaction{
		{ID: "r1", PostID: "p1", UserID: "u2", Emoji: "👍"},
	}
	store := NewReactionStore(storage.reactions, nil, false, nil, nil)
	store.Fetch(context.Background(), "b1")

	added, err := store.Toggle(context.Background(), "p1", "👍", "u1")

	assert.Equal(t, err, nil)
	assert.Equal(t, added, true)
	assert.Equal(t, len(store.ForPost("p1")), 2)
}

func TestToggleRejectsUnknownEmoji(t *testing.T) {
	storage := newFakeStorage()
	store := NewReactionStore(storage.reactions, nil, false, nil, nil)
	store.Fetch(context.Background(), "b1")

	_, err := store.Toggle(context.Background(), "p1", "🍕", "u1")

	assert.Equal(t, errors.Is(err, entities.ErrInvalidEmoji), true)
	assert.Equal(t, store.Len(), 0)
}

func TestToggleInsertFailureRollsBack(t *testing.T) {
	storage := newFakeStorage()
	storage.reactions.insertErr = errRemote
	store := NewReactionStore(storage.reactions, nil, false, nil, nil)
	store.Fetch(context.Background(), "b1")

	added, err := store.Toggle(context.Background(), "p1", "🔥", "u1")

	assert.Equal(t, added, false)
	assert.Equal(t, errors.Is(err, entities.ErrCreateFailed), true)
	assert.Equal(t, store.Len(), 0)
}

func TestToggleGuardRejectsOverlappingToggle(t *testing.T) {
	storage := newFakeStorage()
	release := make(chan struct{})
	var inserts int32
	storage.reactions.onInsert = func() {
		if atomic.AddInt32(&inserts, 1) == 1 {
			<-release
		}
	}
	store := NewReactionStore(storage.reactions, nil, true, nil, nil)
	store.Fetch(context.Background(), "b1")

	done := make(chan error, 1)
	go func() {
		_, err := store.Toggle(context.Background(), "p1", "💡", "u1")
		done <- err
	}()
	eventually(t, func() bool { return store.Len() == 1 })

	_, err := store.Toggle(context.Background(), "p1", "💡", "u1")
	assert.Equal(t, errors.Is(err, entities.ErrToggleInFlight), true)

	// other triples are unaffected
	close(release)
	assert.Equal(t, <-done, nil)
	added, err := store.Toggle(context.Background(), "p1", "💡", "u2")
	assert.Equal(t, err, nil)
	assert.Equal(t, added, true)
}

func TestToggleWithoutGuardDropsUnconfirmedRecord(t *testing.T) {
	storage := newFakeStorage()
	release := make(chan struct{})
	storage.reactions.onInsert = func() { <-release }
	store := NewReactionStore(storage.reactions, nil, false, nil, nil)
	store.Fetch(context.Background(), "b1")

	done := make(chan error, 1)
	go func() {
		_, err := store.Toggle(context.Background(), "p1", "😮", "u1")
		done <- err
	}()
	eventually(t, func() bool { return store.Len() == 1 })

	present, err := store.Toggle(context.Background(), "p1", "😮", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, present, false)
	assert.Equal(t, store.Len(), 0)

	close(release)
	assert.Equal(t, <-done, nil)
	assert.Equal(t, len(storage.reactions.deletes), 0)
	assert.Equal(t, len(storage.reactions.rows), 1)
	_, ok := store.Find("p1", "😮", "u1")
	assert.Equal(t, ok, false)

	// the row the first toggle wrote shows up again with its realtime insert
	assert.Equal(t, store.ApplyRemoteInsert(storage.reactions.rows[0]), true)
	_, ok = store.Find("p1", "😮", "u1")
	assert.Equal(t, ok, true)
}
