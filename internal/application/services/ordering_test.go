package services

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/classboard/core/internal/domain/entities"
)

func TestDragPositionClampsAtZero(t *testing.T) {
	assert.Equal(t, DragPosition(Point{X: 5, Y: 5}, -50, 10), Point{X: 0, Y: 15})
	assert.Equal(t, DragPosition(Point{X: 100, Y: 40}, 20.6, -39.4), Point{X: 121, Y: 1})
	assert.Equal(t, DragPosition(Point{X: 10, Y: 10}, 5000, 0), Point{X: 5010, Y: 10})
}

func TestZCounterIsMonotonic(t *testing.T) {
	seeded := 0
	z := NewZCounter(func() int {
		seeded++
		return 7
	})

	assert.Equal(t, z.Next(), 8)
	assert.Equal(t, z.Next(), 9)
	assert.Equal(t, z.Next(), 10)
	assert.Equal(t, seeded, 1)

	z.Reset()
	assert.Equal(t, z.Next(), 8)
	assert.Equal(t, seeded, 2)
}

func TestArrayMove(t *testing.T) {
	items := []string{"a", "b", "c", "d"}

	assert.Equal(t, ArrayMove(items, 3, 1), []string{"a", "d", "b", "c"})
	assert.Equal(t, ArrayMove(items, 0, 3), []string{"b", "c", "d", "a"})
	assert.Equal(t, ArrayMove(items, 1, 1), []string{"a", "b", "c", "d"})
	assert.Equal(t, items, []string{"a", "b", "c", "d"})
}

func TestPlanDenseReorderWritesOnlyChangedIndexes(t *testing.T) {
	writes := PlanDenseReorder([]string{"A", "B", "C", "D"}, []int{0, 1, 2, 3}, 3, 1)

	assert.Equal(t, writes, []PositionWrite{
		{ID: "D", Position: 1},
		{ID: "B", Position: 2},
		{ID: "C", Position: 3},
	})
}

func TestPlanDenseReorderCompactsGaps(t *testing.T) {
	writes := PlanDenseReorder([]string{"A", "B", "C"}, []int{0, 4, 9}, 0, 1)

	assert.Equal(t, writes, []PositionWrite{
		{ID: "B", Position: 0},
		{ID: "A", Position: 1},
		{ID: "C", Position: 2},
	})
	assert.Equal(t, len(PlanDenseReorder([]string{"A"}, []int{0}, 0, 0)), 0)
}

type kanbanFixture struct {
	storage *fakeStorage
	posts   *PostStore
	columns *ColumnStore
	drag    *KanbanDrag
}

func newKanbanFixture(t *testing.T) *kanbanFixture {
	t.Helper()
	todo, doing := entities.StringPtr("todo"), entities.StringPtr("doing")
	storage := newFakeStorage()
	storage.columns.rows = []entities.Column{
		{ID: "todo", BoardID: "b1", Title: "To do", Position: 0},
		{ID: "doing", BoardID: "b1", Title: "Doing", Position: 1},
	}
	storage.posts.rows = []entities.Post{
		seedPost("A", "b1", "u1", todo, 0),
		seedPost("B", "b1", "u1", todo, 1),
		seedPost("C", "b1", "u1", todo, 2),
		seedPost("D", "b1", "u1", todo, 3),
		seedPost("E", "b1", "u1", doing, 0),
		seedPost("F", "b1", "u1", doing, 1),
		seedPost("G", "b1", "u1", doing, 2),
	}

	pending := NewPendingWrites()
	f := &kanbanFixture{
		storage: storage,
		posts:   NewPostStore(storage.posts, pending, DefaultSpawnArea, nil, nil),
		columns: NewColumnStore(storage.columns, pending, nil, nil),
	}
	f.posts.LinkColumns(f.columns)
	f.drag = NewKanbanDrag(f.posts, f.columns)
	f.posts.Fetch(context.Background(), "b1")
	f.columns.Fetch(context.Background(), "b1")
	return f
}

func (f *kanbanFixture) lane(columnID string) []string {
	return postIDs(f.posts.InColumn(entities.StringPtr(columnID)))
}

func TestKanbanSameColumnReorder(t *testing.T) {
	f := newKanbanFixture(t)

	assert.Equal(t, f.drag.Start("D"), nil)
	assert.Equal(t, f.drag.Over("B"), nil)
	writes, err := f.drag.Drop(context.Background(), "B")

	assert.Equal(t, err, nil)
	assert.Equal(t, len(writes), 3)
	assert.Equal(t, f.lane("todo"), []string{"A", "D", "B", "C"})
	assert.Equal(t, f.storage.posts.updatedIDs(), []string{"D", "B", "C"})
	for i, id := range []string{"A", "D", "B", "C"} {
		post, _ := f.storage.posts.row(id)
		assert.Equal(t, post.ColumnPosition, i)
	}
}

func TestKanbanUnassignedLaneCountsNotesOfMissingColumns(t *testing.T) {
	f := newKanbanFixture(t)
	f.storage.posts.rows = append(f.storage.posts.rows,
		seedPost("H", "b1", "u1", entities.StringPtr("archived"), 0),
		seedPost("I", "b1", "u1", nil, 1),
	)
	assert.Equal(t, f.posts.Refetch(context.Background()), nil)

	assert.Equal(t, postIDs(f.posts.InColumn(nil)), []string{"H", "I"})
	assert.Equal(t, f.posts.CountInColumn(nil), 2)

	assert.Equal(t, f.drag.Start("A"), nil)
	writes, err := f.drag.Drop(context.Background(), UnassignedLane)
	assert.Equal(t, err, nil)
	assert.Equal(t, writes, []PositionWrite{{ID: "A", Position: 2}})

	view := BuildKanbanView(f.columns.Snapshot(), f.posts.Snapshot(), func(p entities.Post) PostCard { return PostCard{Post: p} })
	unassigned := view.Lanes[len(view.Lanes)-1]
	ids := make([]string, len(unassigned.Cards))
	for i, c := range unassigned.Cards {
		ids[i] = c.Post.ID
	}
	assert.Equal(t, ids, []string{"H", "I", "A"})
}

func TestKanbanCrossColumnAppends(t *testing.T) {
	f := newKanbanFixture(t)

	assert.Equal(t, f.drag.Start("A"), nil)
	assert.Equal(t, f.drag.Over("doing"), nil)

	// preview only, nothing written yet
	preview, _ := f.posts.Get("A")
	assert.Equal(t, *preview.ColumnID, "doing")
	assert.Equal(t, len(f.storage.posts.updatedIDs()), 0)

	writes, err := f.drag.Drop(context.Background(), "doing")
	assert.Equal(t, err, nil)
	assert.Equal(t, writes, []PositionWrite{{ID: "A", Position: 3}})

	remote, _ := f.storage.posts.row("A")
	assert.Equal(t, *remote.ColumnID, "doing")
	assert.Equal(t, remote.ColumnPosition, 3)
	assert.Equal(t, f.lane("doing"), []string{"E", "F", "G", "A"})
}

func TestKanbanDropOnCardInOtherColumn(t *testing.T) {
	f := newKanbanFixture(t)

	f.drag.Start("B")
	f.drag.Over("F")
	_, err := f.drag.Drop(context.Background(), "F")

	assert.Equal(t, err, nil)
	remote, _ := f.storage.posts.row("B")
	assert.Equal(t, *remote.ColumnID, "doing")
	assert.Equal(t, remote.ColumnPosition, 3)
}

func TestKanbanMoveToUnassigned(t *testing.T) {
	f := newKanbanFixture(t)

	f.drag.Start("E")
	f.drag.Over(UnassignedLane)
	_, err := f.drag.Drop(context.Background(), UnassignedLane)

	assert.Equal(t, err, nil)
	remote, _ := f.storage.posts.row("E")
	assert.Equal(t, remote.ColumnID == nil, true)
	assert.Equal(t, remote.ColumnPosition, 0)
}

func TestKanbanDropOutsideIsNoop(t *testing.T) {
	f := newKanbanFixture(t)

	f.drag.Start("A")
	f.drag.Over("doing")
	writes, err := f.drag.Drop(context.Background(), "")

	assert.Equal(t, err, nil)
	assert.Equal(t, len(writes), 0)
	assert.Equal(t, len(f.storage.posts.updatedIDs()), 0)
	assert.Equal(t, f.lane("todo"), []string{"A", "B", "C", "D"})
	assert.Equal(t, f.drag.Active(), "")
}

func TestKanbanDropOnOwnLaneHeaderIsNoop(t *testing.T) {
	f := newKanbanFixture(t)

	f.drag.Start("C")
	writes, err := f.drag.Drop(context.Background(), "todo")

	assert.Equal(t, err, nil)
	assert.Equal(t, len(writes), 0)
	assert.Equal(t, len(f.storage.posts.updatedIDs()), 0)
}

func TestKanbanCancelRestoresPreview(t *testing.T) {
	f := newKanbanFixture(t)

	f.drag.Start("G")
	f.drag.Over("todo")
	f.drag.Cancel()

	post, _ := f.posts.Get("G")
	assert.Equal(t, *post.ColumnID, "doing")
}
