package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

// Point is a canvas coordinate pair
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DragPosition returns where a note dragged from start by (dx, dy) lands. Coordinates never go
// below zero; there is no upper bound.
func DragPosition(start Point, dx, dy float64) Point {
	return Point{
		X: math.Max(0, start.X+math.Round(dx)),
		Y: math.Max(0, start.Y+math.Round(dy)),
	}
}

// ZCounter hands out increasing z-indexes for bring-to-front. It is seeded lazily from the
// highest z-index loaded when the first note is grabbed.
type ZCounter struct {
	mu     sync.Mutex
	seed   func() int
	seeded bool
	top    int
}

// NewZCounter creates a counter seeded by seed on first use
func NewZCounter(seed func() int) *ZCounter {
	return &ZCounter{seed: seed}
}

// Next returns the next z-index
func (z *ZCounter) Next() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.seeded {
		z.top = z.seed()
		z.seeded = true
	}
	z.top++
	return z.top
}

// Reset forgets the seed, e.g. after switching boards
func (z *ZCounter) Reset() {
	z.mu.Lock()
	z.seeded = false
	z.top = 0
	z.mu.Unlock()
}

// PositionWrite is one dense position to persist
type PositionWrite struct {
	ID       string
	Position int
}

// ArrayMove returns a copy of items with the element at from moved to to
func ArrayMove[T any](items []T, from, to int) []T {
	out := make([]T, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	if to < 0 {
		to = 0
	}
	if to > len(out) {
		to = len(out)
	}
	out = append(out[:to], append([]T{items[from]}, out[to:]...)...)
	return out
}

// PlanDenseReorder moves ids[from] to index to and returns a write for every id whose new
// index differs from its current position. positions[i] is the stored position of ids[i].
func PlanDenseReorder(ids []string, positions []int, from, to int) []PositionWrite {
	if from < 0 || from >= len(ids) || from == to {
		return nil
	}
	current := make(map[string]int, len(ids))
	for i, id := range ids {
		current[id] = positions[i]
	}

	var writes []PositionWrite
	for i, id := range ArrayMove(ids, from, to) {
		if current[id] != i {
			writes = append(writes, PositionWrite{ID: id, Position: i})
		}
	}
	return writes
}

// UnassignedLane is the drop target id of the lane holding notes without a column
const UnassignedLane = "unassigned"

// KanbanDrag tracks one card drag across Kanban lanes. Hovering only previews the move
// locally; Drop persists it.
type KanbanDrag struct {
	posts   *PostStore
	columns *ColumnStore

	mu       sync.Mutex
	activeID string
	origin   *string
}

// NewKanbanDrag creates a drag tracker over the given stores
func NewKanbanDrag(posts *PostStore, columns *ColumnStore) *KanbanDrag {
	return &KanbanDrag{posts: posts, columns: columns}
}

// Active returns the id of the card being dragged
func (k *KanbanDrag) Active() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.activeID
}

// Start records the card and the column it came from
func (k *KanbanDrag) Start(postID string) error {
	post, ok := k.posts.Get(postID)
	if !ok {
		return fmt.Errorf("post %s: %w", postID, entities.ErrPostNotFound)
	}
	k.mu.Lock()
	k.activeID = postID
	k.origin = post.ColumnID
	k.mu.Unlock()
	return nil
}

// Over previews the dragged card in the lane under the pointer. overID is a column id,
// UnassignedLane or another card's id.
func (k *KanbanDrag) Over(overID string) error {
	active := k.Active()
	if active == "" || overID == "" {
		return nil
	}
	target, ok := k.resolveLane(overID)
	if !ok {
		return nil
	}
	post, ok := k.posts.Get(active)
	if !ok || sameLane(k.posts.Lane(post.ColumnID), target) {
		return nil
	}
	return k.posts.SetLocal(active, ports.Fields{"column_id": target})
}

// Cancel ends the drag and undoes any preview
func (k *KanbanDrag) Cancel() {
	active, origin := k.finish()
	if active != "" {
		k.posts.SetLocal(active, ports.Fields{"column_id": origin})
	}
}

// Drop persists the move onto overID. An empty or unknown target is a no-op that undoes the
// preview. A different lane appends the card to its end; the same lane reorders it densely.
func (k *KanbanDrag) Drop(ctx context.Context, overID string) ([]PositionWrite, error) {
	active, origin := k.finish()
	if active == "" {
		return nil, nil
	}

	target, ok := k.resolveLane(overID)
	if overID == "" || !ok {
		k.posts.SetLocal(active, ports.Fields{"column_id": origin})
		return nil, nil
	}

	if !sameLane(target, k.posts.Lane(origin)) {
		position := 0
		for _, p := range k.posts.InColumn(target) {
			if p.ID != active {
				position++
			}
		}
		err := k.posts.UpdatePost(ctx, active, ports.PostPatch{
			SetColumn:      true,
			ColumnID:       target,
			ColumnPosition: &position,
		})
		return []PositionWrite{{ID: active, Position: position}}, err
	}

	if err := k.posts.SetLocal(active, ports.Fields{"column_id": origin}); err != nil {
		return nil, err
	}
	lane := k.posts.InColumn(target)
	ids := make([]string, len(lane))
	positions := make([]int, len(lane))
	from, to := -1, -1
	for i, p := range lane {
		ids[i] = p.ID
		positions[i] = p.ColumnPosition
		if p.ID == active {
			from = i
		}
		if p.ID == overID {
			to = i
		}
	}
	if to < 0 {
		// dropped on its own lane header
		to = from
	}

	writes := PlanDenseReorder(ids, positions, from, to)
	var errs []error
	for _, w := range writes {
		position := w.Position
		if err := k.posts.UpdatePost(ctx, w.ID, ports.PostPatch{ColumnPosition: &position}); err != nil {
			errs = append(errs, err)
		}
	}
	return writes, errors.Join(errs...)
}

func (k *KanbanDrag) finish() (string, *string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	active, origin := k.activeID, k.origin
	k.activeID, k.origin = "", nil
	return active, origin
}

// resolveLane maps a drop target onto a column reference; nil means unassigned
func (k *KanbanDrag) resolveLane(overID string) (*string, bool) {
	switch {
	case overID == "":
		return nil, false
	case overID == UnassignedLane:
		return nil, true
	case k.columns.Has(overID):
		return entities.StringPtr(overID), true
	}
	if post, ok := k.posts.Get(overID); ok {
		return k.posts.Lane(post.ColumnID), true
	}
	return nil, false
}

func sameLane(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
