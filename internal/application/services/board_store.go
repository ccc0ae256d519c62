package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// BoardStore holds boards. The dashboard scopes it by owner id; a board session scopes it by
// board id to track the one open board.
type BoardStore struct {
	*EntityStore[entities.Board]
}

func boardKind(scopeColumn string) entityKind[entities.Board] {
	return entityKind[entities.Board]{
		name:  "board",
		table: ports.TableBoards,
		idOf:  func(b entities.Board) string { return b.ID },
		withID: func(b entities.Board, id string) entities.Board {
			b.ID = id
			return b
		},
		query: func(scope string) ports.Query {
			return ports.Query{}.Where(scopeColumn, scope).OrderBy("updated_at", true)
		},
		less: func(a, b entities.Board) bool {
			return a.UpdatedAt.After(b.UpdatedAt)
		},
		prepend: true,
	}
}

// NewBoardStore creates a store listing the boards of one owner
func NewBoardStore(repo ports.Repository[entities.Board], pending *PendingWrites, log *logger.Logger, metrics ports.SyncMetrics) *BoardStore {
	return &BoardStore{newEntityStore(boardKind("owner_id"), repo, pending, log, metrics)}
}

// NewOpenBoardStore creates a store tracking a single board by id
func NewOpenBoardStore(repo ports.Repository[entities.Board], pending *PendingWrites, log *logger.Logger, metrics ports.SyncMetrics) *BoardStore {
	return &BoardStore{newEntityStore(boardKind("id"), repo, pending, log, metrics)}
}

// Create adds a board owned by ownerID at the head of the list
func (s *BoardStore) Create(ctx context.Context, ownerID string, req ports.CreateBoardRequest) (entities.Board, error) {
	if ownerID == "" {
		return entities.Board{}, entities.ErrUnauthenticated
	}

	now := time.Now().UTC()
	board := entities.Board{
		OwnerID:         ownerID,
		Title:           strings.TrimSpace(req.Title),
		BackgroundColor: req.BackgroundColor,
		ViewMode:        req.ViewMode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if board.BackgroundColor == "" {
		board.BackgroundColor = entities.DefaultBoardBackground
	}
	if board.ViewMode == "" {
		board.ViewMode = entities.ViewModeCanvas
	}
	if err := entities.Validate(board); err != nil {
		return entities.Board{}, fmt.Errorf("invalid board: %w", err)
	}

	return s.create(ctx, board)
}

// UpdateBoard applies a partial update
func (s *BoardStore) UpdateBoard(ctx context.Context, id string, patch ports.BoardPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" || len([]rune(title)) > entities.MaxTitleLength {
			return fmt.Errorf("invalid board title %q", title)
		}
		patch.Title = &title
	}
	if patch.ViewMode != nil {
		switch *patch.ViewMode {
		case entities.ViewModeCanvas, entities.ViewModeKanban, entities.ViewModeGrid:
		default:
			return fmt.Errorf("invalid view mode %q", *patch.ViewMode)
		}
	}
	return s.Update(ctx, id, patch.Fields())
}
