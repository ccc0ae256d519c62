package realtime

import (
	"context"
	"fmt"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// PublishingStorage decorates a store of record so every confirmed write is broadcast as a
// Change on the board it belongs to.
type PublishingStorage struct {
	inner     ports.Storage
	publisher ports.Publisher
	log       *logger.Logger

	boards    ports.Repository[entities.Board]
	columns   ports.Repository[entities.Column]
	posts     ports.Repository[entities.Post]
	reactions ports.Repository[entities.Reaction]
	comments  ports.Repository[entities.Comment]
}

// NewPublishingStorage wraps inner
func NewPublishingStorage(inner ports.Storage, publisher ports.Publisher, log *logger.Logger) *PublishingStorage {
	if log == nil {
		log = logger.NewNop()
	}
	s := &PublishingStorage{
		inner:     inner,
		publisher: publisher,
		log:       log.WithComponent("publishing_storage"),
	}

	s.boards = &publishingRepository[entities.Board]{
		s: s, inner: inner.Boards(), table: ports.TableBoards,
		idOf: func(b entities.Board) string { return b.ID },
		boardOf: func(_ context.Context, b entities.Board) (string, error) {
			return b.ID, nil
		},
	}
	s.columns = &publishingRepository[entities.Column]{
		s: s, inner: inner.Columns(), table: ports.TableColumns,
		idOf: func(c entities.Column) string { return c.ID },
		boardOf: func(_ context.Context, c entities.Column) (string, error) {
			return c.BoardID, nil
		},
	}
	s.posts = &publishingRepository[entities.Post]{
		s: s, inner: inner.Posts(), table: ports.TablePosts,
		idOf: func(p entities.Post) string { return p.ID },
		boardOf: func(_ context.Context, p entities.Post) (string, error) {
			return p.BoardID, nil
		},
	}
	s.reactions = &publishingRepository[entities.Reaction]{
		s: s, inner: inner.Reactions(), table: ports.TableReactions,
		idOf: func(r entities.Reaction) string { return r.ID },
		boardOf: func(ctx context.Context, r entities.Reaction) (string, error) {
			return s.postBoard(ctx, r.PostID)
		},
	}
	s.comments = &publishingRepository[entities.Comment]{
		s: s, inner: inner.Comments(), table: ports.TableComments,
		idOf: func(c entities.Comment) string { return c.ID },
		boardOf: func(ctx context.Context, c entities.Comment) (string, error) {
			return s.postBoard(ctx, c.PostID)
		},
	}
	return s
}

func (s *PublishingStorage) Boards() ports.Repository[entities.Board]       { return s.boards }
func (s *PublishingStorage) Columns() ports.Repository[entities.Column]     { return s.columns }
func (s *PublishingStorage) Posts() ports.Repository[entities.Post]         { return s.posts }
func (s *PublishingStorage) Reactions() ports.Repository[entities.Reaction] { return s.reactions }
func (s *PublishingStorage) Comments() ports.Repository[entities.Comment]   { return s.comments }
func (s *PublishingStorage) Profiles() ports.ProfileRepository              { return s.inner.Profiles() }

func (s *PublishingStorage) postBoard(ctx context.Context, postID string) (string, error) {
	posts, err := s.inner.Posts().Select(ctx, ports.Query{}.Where("id", postID))
	if err != nil {
		return "", err
	}
	if len(posts) == 0 {
		return "", fmt.Errorf("post %s: %w", postID, entities.ErrPostNotFound)
	}
	return posts[0].BoardID, nil
}

// emit publishes a change. The write is already confirmed, so failures are only logged.
func (s *PublishingStorage) emit(ctx context.Context, table ports.Table, event ports.ChangeEvent, boardID, id string, row interface{}) {
	log := s.log.WithBoardID(boardID).WithFields("table", table, "event", event, "id", id)

	change, err := ports.NewChange(table, event, boardID, id, row)
	if err != nil {
		log.WithError(err).Error("Failed to encode change")
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), change); err != nil {
		log.WithError(err).Warn("Failed to publish change")
		return
	}
	log.Debug("Change published")
}

type publishingRepository[T any] struct {
	s       *PublishingStorage
	inner   ports.Repository[T]
	table   ports.Table
	idOf    func(T) string
	boardOf func(context.Context, T) (string, error)
}

func (r *publishingRepository[T]) Select(ctx context.Context, q ports.Query) ([]T, error) {
	return r.inner.Select(ctx, q)
}

func (r *publishingRepository[T]) Insert(ctx context.Context, row T) (T, error) {
	created, err := r.inner.Insert(ctx, row)
	if err != nil {
		return created, err
	}
	r.publish(ctx, ports.EventInsert, created, true)
	return created, nil
}

func (r *publishingRepository[T]) Update(ctx context.Context, id string, fields ports.Fields) error {
	if err := r.inner.Update(ctx, id, fields); err != nil {
		return err
	}
	if row, ok := r.lookup(ctx, id); ok {
		r.publish(ctx, ports.EventUpdate, row, true)
	}
	return nil
}

func (r *publishingRepository[T]) Delete(ctx context.Context, id string) error {
	// the board is resolved before the row and its parents can disappear
	row, found := r.lookup(ctx, id)
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	if found {
		r.publish(ctx, ports.EventDelete, row, false)
	}
	return nil
}

func (r *publishingRepository[T]) lookup(ctx context.Context, id string) (T, bool) {
	rows, err := r.inner.Select(ctx, ports.Query{}.Where("id", id))
	if err != nil || len(rows) == 0 {
		var zero T
		return zero, false
	}
	return rows[0], true
}

func (r *publishingRepository[T]) publish(ctx context.Context, event ports.ChangeEvent, row T, withRow bool) {
	boardID, err := r.boardOf(ctx, row)
	if err != nil {
		r.s.log.WithError(err).Warnw("Cannot resolve board for change", "table", r.table, "id", r.idOf(row))
		return
	}
	var payload interface{}
	if withRow {
		payload = row
	}
	r.s.emit(ctx, r.table, event, boardID, r.idOf(row), payload)
}
