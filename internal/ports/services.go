package ports

import (
	"github.com/classboard/core/internal/domain/entities"
)

// BoardPatch is a partial board update
type BoardPatch struct {
	Title           *string
	BackgroundColor *string
	ViewMode        *entities.ViewMode
	IsLocked        *bool
	IsPublic        *bool
}

// Fields returns the columns touched by the patch
func (p BoardPatch) Fields() Fields {
	f := Fields{}
	if p.Title != nil {
		f["title"] = *p.Title
	}
	if p.BackgroundColor != nil {
		f["background_color"] = *p.BackgroundColor
	}
	if p.ViewMode != nil {
		f["view_mode"] = string(*p.ViewMode)
	}
	if p.IsLocked != nil {
		f["is_locked"] = *p.IsLocked
	}
	if p.IsPublic != nil {
		f["is_public"] = *p.IsPublic
	}
	return f
}

// ColumnPatch is a partial column update
type ColumnPatch struct {
	Title    *string
	Color    *string
	Position *int
}

// Fields returns the columns touched by the patch
func (p ColumnPatch) Fields() Fields {
	f := Fields{}
	if p.Title != nil {
		f["title"] = *p.Title
	}
	if p.Color != nil {
		f["color"] = *p.Color
	}
	if p.Position != nil {
		f["position"] = *p.Position
	}
	return f
}

// PostPatch is a partial post update. SetColumn distinguishes "move to unassigned"
// (SetColumn with a nil ColumnID) from "leave the column alone".
type PostPatch struct {
	Content        *string
	Color          *string
	PosX           *float64
	PosY           *float64
	ZIndex         *int
	SetColumn      bool
	ColumnID       *string
	ColumnPosition *int
	Labels         []string
}

// Fields returns the columns touched by the patch
func (p PostPatch) Fields() Fields {
	f := Fields{}
	if p.Content != nil {
		f["content"] = *p.Content
	}
	if p.Color != nil {
		f["color"] = *p.Color
	}
	if p.PosX != nil {
		f["pos_x"] = *p.PosX
	}
	if p.PosY != nil {
		f["pos_y"] = *p.PosY
	}
	if p.ZIndex != nil {
		f["z_index"] = *p.ZIndex
	}
	if p.SetColumn {
		f["column_id"] = p.ColumnID
	}
	if p.ColumnPosition != nil {
		f["column_position"] = *p.ColumnPosition
	}
	if p.Labels != nil {
		f["labels"] = p.Labels
	}
	return f
}

// AddPostOptions customises a new post; zero values fall back to defaults.
type AddPostOptions struct {
	Color          string
	ColumnID       *string
	ColumnPosition *int
	PosX           *float64
	PosY           *float64
	Content        string
}

// CreateBoardRequest describes a new board
type CreateBoardRequest struct {
	Title           string            `json:"title" validate:"required,max=120"`
	BackgroundColor string            `json:"background_color"`
	ViewMode        entities.ViewMode `json:"view_mode"`
}
