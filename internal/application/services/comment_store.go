package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// CommentStore holds the thread of one note. Its scope key is the post id; an empty scope
// means no thread is open.
type CommentStore struct {
	*EntityStore[entities.Comment]
}

// NewCommentStore creates a post-scoped comment store
func NewCommentStore(repo ports.Repository[entities.Comment], pending *PendingWrites, log *logger.Logger, metrics ports.SyncMetrics) *CommentStore {
	kind := entityKind[entities.Comment]{
		name:  "comment",
		table: ports.TableComments,
		idOf:  func(c entities.Comment) string { return c.ID },
		withID: func(c entities.Comment, id string) entities.Comment {
			c.ID = id
			return c
		},
		query: func(scope string) ports.Query {
			return ports.Query{}.Where("post_id", scope).OrderBy("created_at", false)
		},
		less: func(a, b entities.Comment) bool { return a.CreatedAt.Before(b.CreatedAt) },
		reconcile: func(draft, confirmed entities.Comment) entities.Comment {
			if confirmed.Author == nil {
				confirmed.Author = draft.Author
			}
			return confirmed
		},
	}
	return &CommentStore{newEntityStore(kind, repo, pending, log, metrics)}
}

// Add appends a comment to the open thread. author is the display projection shown until the
// store of record answers.
func (s *CommentStore) Add(ctx context.Context, authorID, content string, author *entities.Profile) (entities.Comment, error) {
	postID := s.Scope()
	if postID == "" {
		return entities.Comment{}, fmt.Errorf("no comment thread open: %w", entities.ErrNoSession)
	}
	if authorID == "" {
		return entities.Comment{}, entities.ErrUnauthenticated
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return entities.Comment{}, fmt.Errorf("comment is empty")
	}
	if utf8.RuneCountInString(content) > entities.MaxCommentContent {
		return entities.Comment{}, fmt.Errorf("comment exceeds %d characters", entities.MaxCommentContent)
	}

	return s.create(ctx, entities.Comment{
		PostID:    postID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Author:    author,
	})
}
