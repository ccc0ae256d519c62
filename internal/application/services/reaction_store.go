package services

import (
	"context"
	"sync"
	"time"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// ReactionStore holds the reactions on every note of one board
type ReactionStore struct {
	*EntityStore[entities.Reaction]

	guard    bool
	inflight sync.Map
}

// NewReactionStore creates a board-scoped reaction store. With guard set, a second toggle of a
// triple whose first toggle has not settled fails with ErrToggleInFlight.
func NewReactionStore(repo ports.Repository[entities.Reaction], pending *PendingWrites, guard bool, log *logger.Logger, metrics ports.SyncMetrics) *ReactionStore {
	kind := entityKind[entities.Reaction]{
		name:  "reaction",
		table: ports.TableReactions,
		idOf:  func(r entities.Reaction) string { return r.ID },
		withID: func(r entities.Reaction, id string) entities.Reaction {
			r.ID = id
			return r
		},
		query: func(scope string) ports.Query {
			return ports.Query{}.Where("board_id", scope).OrderBy("created_at", false)
		},
		less: func(a, b entities.Reaction) bool { return a.CreatedAt.Before(b.CreatedAt) },
	}
	return &ReactionStore{
		EntityStore: newEntityStore(kind, repo, pending, log, metrics),
		guard:       guard,
	}
}

// Find returns the reaction for a (post, emoji, user) triple
func (s *ReactionStore) Find(postID, emoji, userID string) (entities.Reaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.items {
		if r.Matches(postID, emoji, userID) {
			return r, true
		}
	}
	return entities.Reaction{}, false
}

// ForPost returns the reactions on one note in arrival order
func (s *ReactionStore) ForPost(postID string) []entities.Reaction {
	var out []entities.Reaction
	for _, r := range s.Snapshot() {
		if r.PostID == postID {
			out = append(out, r)
		}
	}
	return out
}

// Toggle flips userID's emoji on postID. It reports whether the reaction is now present.
func (s *ReactionStore) Toggle(ctx context.Context, postID, emoji, userID string) (bool, error) {
	if !entities.IsReactionEmoji(emoji) {
		return false, entities.ErrInvalidEmoji
	}
	if userID == "" {
		return false, entities.ErrUnauthenticated
	}

	if s.guard {
		key := postID + "\x00" + emoji + "\x00" + userID
		if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
			return false, entities.ErrToggleInFlight
		}
		defer s.inflight.Delete(key)
	}

	if existing, ok := s.Find(postID, emoji, userID); ok {
		if IsTempID(existing.ID) {
			// no row to delete yet; the confirmed insert will come back over the feed
			s.discardLocal(existing.ID)
			return false, nil
		}
		return false, s.Delete(ctx, existing.ID)
	}

	_, err := s.create(ctx, entities.Reaction{
		PostID:    postID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
