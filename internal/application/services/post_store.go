package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// SpawnArea is the region new canvas notes land in when no position is given
type SpawnArea struct {
	Margin float64
	Width  float64
	Height float64
}

// DefaultSpawnArea places notes at 80 + [0,500) by 80 + [0,350)
var DefaultSpawnArea = SpawnArea{Margin: 80, Width: 500, Height: 350}

// PostStore holds the sticky notes of one board, ordered by column_position
type PostStore struct {
	*EntityStore[entities.Post]
	spawn  SpawnArea
	random func() float64

	// knownColumn is nil until LinkColumns; then notes in unloaded columns count as unassigned
	knownColumn func(id string) bool
}

// NewPostStore creates a board-scoped post store
func NewPostStore(repo ports.Repository[entities.Post], pending *PendingWrites, spawn SpawnArea, log *logger.Logger, metrics ports.SyncMetrics) *PostStore {
	kind := entityKind[entities.Post]{
		name:  "post",
		table: ports.TablePosts,
		idOf:  func(p entities.Post) string { return p.ID },
		withID: func(p entities.Post, id string) entities.Post {
			p.ID = id
			return p
		},
		query: func(scope string) ports.Query {
			return ports.Query{}.Where("board_id", scope).OrderBy("column_position", false)
		},
		less: func(a, b entities.Post) bool { return a.ColumnPosition < b.ColumnPosition },
	}
	if spawn.Width <= 0 || spawn.Height <= 0 {
		spawn = DefaultSpawnArea
	}
	return &PostStore{
		EntityStore: newEntityStore(kind, repo, pending, log, metrics),
		spawn:       spawn,
		random:      rand.Float64,
	}
}

// Add creates a note authored by authorID on the scoped board. Unset options fall back to a
// random spawn point, the next z-index and the end of the target column.
func (s *PostStore) Add(ctx context.Context, authorID string, opts ports.AddPostOptions) (entities.Post, error) {
	boardID := s.Scope()
	if boardID == "" {
		return entities.Post{}, entities.ErrNoSession
	}
	if authorID == "" {
		return entities.Post{}, entities.ErrUnauthenticated
	}
	if utf8.RuneCountInString(opts.Content) > entities.MaxPostContent {
		return entities.Post{}, fmt.Errorf("post content exceeds %d characters", entities.MaxPostContent)
	}

	now := time.Now().UTC()
	post := entities.Post{
		BoardID:   boardID,
		AuthorID:  authorID,
		Content:   opts.Content,
		Color:     opts.Color,
		ZIndex:    s.Len() + 1,
		ColumnID:  opts.ColumnID,
		Labels:    pq.StringArray{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if post.Color == "" {
		post.Color = entities.DefaultNoteColor
	}
	if opts.PosX != nil {
		post.PosX = *opts.PosX
	} else {
		post.PosX = s.spawn.Margin + float64(int(s.random()*s.spawn.Width))
	}
	if opts.PosY != nil {
		post.PosY = *opts.PosY
	} else {
		post.PosY = s.spawn.Margin + float64(int(s.random()*s.spawn.Height))
	}
	if opts.ColumnPosition != nil {
		post.ColumnPosition = *opts.ColumnPosition
	} else {
		post.ColumnPosition = s.CountInColumn(opts.ColumnID)
	}
	if err := entities.Validate(post); err != nil {
		return entities.Post{}, fmt.Errorf("invalid post: %w", err)
	}

	return s.create(ctx, post)
}

// UpdatePost applies a partial update
func (s *PostStore) UpdatePost(ctx context.Context, id string, patch ports.PostPatch) error {
	if patch.Content != nil && utf8.RuneCountInString(*patch.Content) > entities.MaxPostContent {
		return fmt.Errorf("post content exceeds %d characters", entities.MaxPostContent)
	}
	for _, label := range patch.Labels {
		if _, ok := entities.FindLabelOption(label); !ok {
			return fmt.Errorf("%w: %q", entities.ErrInvalidLabel, label)
		}
	}
	if patch.PosX != nil && *patch.PosX < 0 || patch.PosY != nil && *patch.PosY < 0 {
		return fmt.Errorf("post position must not be negative")
	}
	return s.Update(ctx, id, patch.Fields())
}

// LinkColumns makes lane lookups treat a note whose column is not in columns as unassigned,
// matching how the Kanban view buckets it
func (s *PostStore) LinkColumns(columns *ColumnStore) {
	s.knownColumn = columns.Has
}

// Lane returns the lane a column reference resolves to; unknown columns resolve to nil
func (s *PostStore) Lane(columnID *string) *string {
	if columnID != nil && s.knownColumn != nil && !s.knownColumn(*columnID) {
		return nil
	}
	return columnID
}

func (s *PostStore) inLane(p *entities.Post, columnID *string) bool {
	if columnID == nil {
		return s.Lane(p.ColumnID) == nil
	}
	return p.InColumn(columnID)
}

// CountInColumn counts the notes in a column; nil is the unassigned lane
func (s *PostStore) CountInColumn(columnID *string) int {
	n := 0
	for _, p := range s.Snapshot() {
		if s.inLane(&p, columnID) {
			n++
		}
	}
	return n
}

// InColumn returns the notes of a column sorted by column_position
func (s *PostStore) InColumn(columnID *string) []entities.Post {
	var out []entities.Post
	for _, p := range s.Snapshot() {
		if s.inLane(&p, columnID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ColumnPosition < out[j].ColumnPosition })
	return out
}

// MaxZ returns the highest z-index among loaded notes
func (s *PostStore) MaxZ() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for i := range s.items {
		if s.items[i].ZIndex > max {
			max = s.items[i].ZIndex
		}
	}
	return max
}
