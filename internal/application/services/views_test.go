package services

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/classboard/core/internal/domain/entities"
)

func plainCard(p entities.Post) PostCard {
	return PostCard{Post: p}
}

func cardIDs(cards []PostCard) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.Post.ID
	}
	return ids
}

func TestSummarizeReactions(t *testing.T) {
	reactions := []entities.Reaction{
		{ID: "1", PostID: "p", UserID: "u2", Emoji: "🔥"},
		{ID: "2", PostID: "p", UserID: "u1", Emoji: "👍"},
		{ID: "3", PostID: "p", UserID: "u3", Emoji: "👍"},
	}

	assert.Equal(t, SummarizeReactions(reactions, "u1"), []ReactionSummary{
		{Emoji: "👍", Count: 2, Mine: true},
		{Emoji: "🔥", Count: 1, Mine: false},
	})
	assert.Equal(t, len(SummarizeReactions(nil, "u1")), 0)
}

func TestCanvasViewPaintsByZIndex(t *testing.T) {
	a := seedPost("a", "b1", "u1", nil, 0)
	a.ZIndex = 5
	b := seedPost("b", "b1", "u1", nil, 1)
	b.ZIndex = 2
	c := seedPost("c", "b1", "u1", nil, 2)
	c.ZIndex = 5

	view := BuildCanvasView([]entities.Post{a, b, c}, plainCard)

	assert.Equal(t, cardIDs(view.Cards), []string{"b", "a", "c"})
}

func TestKanbanViewBucketsLanes(t *testing.T) {
	todo, done := entities.StringPtr("todo"), entities.StringPtr("done")
	columns := []entities.Column{
		{ID: "done", Title: "Done", Position: 1},
		{ID: "todo", Title: "To do", Position: 0},
	}
	posts := []entities.Post{
		seedPost("t2", "b1", "u1", todo, 1),
		seedPost("loose", "b1", "u1", nil, 0),
		seedPost("t1", "b1", "u1", todo, 0),
		seedPost("d1", "b1", "u1", done, 0),
		seedPost("orphan", "b1", "u1", entities.StringPtr("deleted"), 3),
	}

	view := BuildKanbanView(columns, posts, plainCard)

	assert.Equal(t, len(view.Lanes), 3)
	assert.Equal(t, view.Lanes[0].ID, "todo")
	assert.Equal(t, cardIDs(view.Lanes[0].Cards), []string{"t1", "t2"})
	assert.Equal(t, view.Lanes[1].ID, "done")
	assert.Equal(t, cardIDs(view.Lanes[1].Cards), []string{"d1"})
	assert.Equal(t, view.Lanes[2].ID, UnassignedLane)
	assert.Equal(t, view.Lanes[2].Column == nil, true)
	assert.Equal(t, cardIDs(view.Lanes[2].Cards), []string{"loose", "orphan"})
}

func TestGridViewKeepsStoreOrder(t *testing.T) {
	posts := []entities.Post{
		seedPost("z", "b1", "u1", nil, 3),
		seedPost("a", "b1", "u1", nil, 0),
	}

	view := BuildGridView(posts, plainCard)

	assert.Equal(t, cardIDs(view.Cards), []string{"z", "a"})
}
