package http

import (
	"context"
	"fmt"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

// access evaluates row policies for one caller. Boards and posts are memoized for the life of
// a request.
type access struct {
	storage ports.Storage
	userID  string
	boards  map[string]*entities.Board
	posts   map[string]*entities.Post
}

func newAccess(storage ports.Storage, userID string) *access {
	return &access{
		storage: storage,
		userID:  userID,
		boards:  make(map[string]*entities.Board),
		posts:   make(map[string]*entities.Post),
	}
}

func (a *access) board(ctx context.Context, id string) (*entities.Board, error) {
	if b, ok := a.boards[id]; ok {
		if b == nil {
			return nil, entities.ErrBoardNotFound
		}
		return b, nil
	}
	rows, err := a.storage.Boards().Select(ctx, ports.Query{}.Where("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		a.boards[id] = nil
		return nil, entities.ErrBoardNotFound
	}
	a.boards[id] = &rows[0]
	return &rows[0], nil
}

func (a *access) post(ctx context.Context, id string) (*entities.Post, error) {
	if p, ok := a.posts[id]; ok {
		if p == nil {
			return nil, entities.ErrPostNotFound
		}
		return p, nil
	}
	rows, err := a.storage.Posts().Select(ctx, ports.Query{}.Where("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		a.posts[id] = nil
		return nil, entities.ErrPostNotFound
	}
	a.posts[id] = &rows[0]
	return &rows[0], nil
}

func (a *access) postBoard(ctx context.Context, postID string) (*entities.Board, error) {
	p, err := a.post(ctx, postID)
	if err != nil {
		return nil, err
	}
	return a.board(ctx, p.BoardID)
}

func (a *access) owns(b *entities.Board) bool {
	return b.OwnerID == a.userID
}

// canRead: owners always, everyone else only on public boards
func (a *access) canRead(b *entities.Board) bool {
	return a.owns(b) || b.IsPublic
}

// canWrite also requires the board to be unlocked for non-owners
func (a *access) canWrite(b *entities.Board) error {
	if !a.canRead(b) {
		return entities.ErrForbidden
	}
	if b.IsLocked && !a.owns(b) {
		return entities.ErrBoardLocked
	}
	return nil
}

func (a *access) requireOwner(b *entities.Board) error {
	if !a.owns(b) {
		return entities.ErrNotBoardOwner
	}
	return nil
}

// readable hides rows whose board is gone or private to someone else
func (a *access) readable(b *entities.Board, err error) bool {
	return err == nil && a.canRead(b)
}

// authorOnlyPostFields may only be changed by the post author
var authorOnlyPostFields = []string{"content", "color", "labels"}

func (a *access) checkPostUpdate(post *entities.Post, board *entities.Board, fields ports.Fields) error {
	if err := a.canWrite(board); err != nil {
		return err
	}
	if post.AuthorID == a.userID {
		return nil
	}
	for _, column := range authorOnlyPostFields {
		if _, ok := fields[column]; ok {
			return fmt.Errorf("%s: %w", column, entities.ErrNotPostAuthor)
		}
	}
	return nil
}
