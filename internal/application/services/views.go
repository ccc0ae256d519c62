package services

import (
	"sort"

	"github.com/classboard/core/internal/domain/entities"
)

// ReactionSummary is the count of one emoji on a note
type ReactionSummary struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Mine  bool   `json:"mine"`
}

// SummarizeReactions groups a note's reactions by emoji in vocabulary order, skipping emojis
// nobody used.
func SummarizeReactions(reactions []entities.Reaction, userID string) []ReactionSummary {
	counts := make(map[string]*ReactionSummary)
	for _, r := range reactions {
		s, ok := counts[r.Emoji]
		if !ok {
			s = &ReactionSummary{Emoji: r.Emoji}
			counts[r.Emoji] = s
		}
		s.Count++
		if r.UserID == userID {
			s.Mine = true
		}
	}

	out := make([]ReactionSummary, 0, len(counts))
	for _, emoji := range entities.ReactionEmojis {
		if s, ok := counts[emoji]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// PostCard is a note decorated for display
type PostCard struct {
	Post       entities.Post          `json:"post"`
	AuthorName string                 `json:"author_name"`
	Labels     []entities.LabelOption `json:"labels"`
	Reactions  []ReactionSummary      `json:"reactions"`
	Pending    bool                   `json:"pending"`
	CanEdit    bool                   `json:"can_edit"`
	CanDelete  bool                   `json:"can_delete"`
}

// CanvasView lists cards in paint order, lowest z-index first
type CanvasView struct {
	Cards []PostCard `json:"cards"`
}

// KanbanLane is one column of cards; Column is nil for the unassigned lane
type KanbanLane struct {
	ID     string           `json:"id"`
	Column *entities.Column `json:"column,omitempty"`
	Cards  []PostCard       `json:"cards"`
}

// KanbanView lists lanes left to right, unassigned last
type KanbanView struct {
	Lanes []KanbanLane `json:"lanes"`
}

// GridView lists cards in store order
type GridView struct {
	Cards []PostCard `json:"cards"`
}

type cardDecorator func(entities.Post) PostCard

// BuildCanvasView orders posts by z-index, keeping store order among ties
func BuildCanvasView(posts []entities.Post, decorate cardDecorator) CanvasView {
	sorted := append([]entities.Post(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ZIndex < sorted[j].ZIndex })

	view := CanvasView{Cards: make([]PostCard, 0, len(sorted))}
	for _, p := range sorted {
		view.Cards = append(view.Cards, decorate(p))
	}
	return view
}

// BuildKanbanView buckets posts into columns sorted by position and posts sorted by
// column_position. Posts pointing at a column that is not loaded land in the unassigned lane.
func BuildKanbanView(columns []entities.Column, posts []entities.Post, decorate cardDecorator) KanbanView {
	cols := append([]entities.Column(nil), columns...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })

	lanes := make([]KanbanLane, 0, len(cols)+1)
	index := make(map[string]int, len(cols))
	for i := range cols {
		index[cols[i].ID] = len(lanes)
		lanes = append(lanes, KanbanLane{ID: cols[i].ID, Column: &cols[i], Cards: []PostCard{}})
	}
	unassigned := len(lanes)
	lanes = append(lanes, KanbanLane{ID: UnassignedLane, Cards: []PostCard{}})

	sorted := append([]entities.Post(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ColumnPosition < sorted[j].ColumnPosition })
	for _, p := range sorted {
		lane := unassigned
		if p.ColumnID != nil {
			if i, ok := index[*p.ColumnID]; ok {
				lane = i
			}
		}
		lanes[lane].Cards = append(lanes[lane].Cards, decorate(p))
	}
	return KanbanView{Lanes: lanes}
}

// BuildGridView keeps store order
func BuildGridView(posts []entities.Post, decorate cardDecorator) GridView {
	view := GridView{Cards: make([]PostCard, 0, len(posts))}
	for _, p := range posts {
		view.Cards = append(view.Cards, decorate(p))
	}
	return view
}
