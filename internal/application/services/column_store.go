package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// ColumnStore holds the Kanban columns of one board, ordered by position
type ColumnStore struct {
	*EntityStore[entities.Column]
}

// NewColumnStore creates a board-scoped column store
func NewColumnStore(repo ports.Repository[entities.Column], pending *PendingWrites, log *logger.Logger, metrics ports.SyncMetrics) *ColumnStore {
	kind := entityKind[entities.Column]{
		name:  "column",
		table: ports.TableColumns,
		idOf:  func(c entities.Column) string { return c.ID },
		withID: func(c entities.Column, id string) entities.Column {
			c.ID = id
			return c
		},
		query: func(scope string) ports.Query {
			return ports.Query{}.Where("board_id", scope).OrderBy("position", false)
		},
		less: func(a, b entities.Column) bool { return a.Position < b.Position },
	}
	return &ColumnStore{newEntityStore(kind, repo, pending, log, metrics)}
}

// Add appends a column; its position is the current column count
func (s *ColumnStore) Add(ctx context.Context, title, color string) (entities.Column, error) {
	boardID := s.Scope()
	if boardID == "" {
		return entities.Column{}, entities.ErrNoSession
	}

	position := s.Len()
	if color == "" {
		color = entities.ColumnColors[position%len(entities.ColumnColors)]
	}
	column := entities.Column{
		BoardID:   boardID,
		Title:     strings.TrimSpace(title),
		Color:     color,
		Position:  position,
		CreatedAt: time.Now().UTC(),
	}
	if err := entities.Validate(column); err != nil {
		return entities.Column{}, fmt.Errorf("invalid column: %w", err)
	}

	return s.create(ctx, column)
}

// UpdateColumn applies a partial update
func (s *ColumnStore) UpdateColumn(ctx context.Context, id string, patch ports.ColumnPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" || len([]rune(title)) > entities.MaxTitleLength {
			return fmt.Errorf("invalid column title %q", title)
		}
		patch.Title = &title
	}
	return s.Update(ctx, id, patch.Fields())
}

// Move reorders column id to index, rewriting every position that changes
func (s *ColumnStore) Move(ctx context.Context, id string, index int) error {
	columns := s.Snapshot()
	from := -1
	ids := make([]string, len(columns))
	positions := make([]int, len(columns))
	for i, c := range columns {
		ids[i] = c.ID
		positions[i] = c.Position
		if c.ID == id {
			from = i
		}
	}
	if from < 0 {
		return fmt.Errorf("column %s: %w", id, entities.ErrColumnNotFound)
	}

	var errs []error
	for _, w := range PlanDenseReorder(ids, positions, from, index) {
		position := w.Position
		if err := s.UpdateColumn(ctx, w.ID, ports.ColumnPatch{Position: &position}); err != nil {
			errs = append(errs, err)
		}
	}
	s.resort()
	return errors.Join(errs...)
}

// Has reports whether the column is loaded
func (s *ColumnStore) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

func (s *ColumnStore) resort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sortStable(s.items, s.kind.less)
}
