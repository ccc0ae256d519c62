package entities

import (
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrBoardNotFound     = errors.New("board not found")
	ErrPostNotFound      = errors.New("post not found")
	ErrColumnNotFound    = errors.New("column not found")
	ErrBoardLocked       = errors.New("board is locked")
	ErrNotBoardOwner     = errors.New("only the board owner can do this")
	ErrNotPostAuthor     = errors.New("only the post author can do this")
	ErrNotCommentAuthor  = errors.New("only the comment author can do this")
	ErrUnauthenticated   = errors.New("no signed-in user")
	ErrInvalidEmoji      = errors.New("invalid reaction emoji")
	ErrInvalidLabel      = errors.New("invalid label")
	ErrCreateFailed      = errors.New("create failed")
	ErrPendingCreate     = errors.New("record is not confirmed yet")
	ErrToggleInFlight    = errors.New("reaction toggle already in flight")
	ErrNoSession         = errors.New("no board open")
	ErrUnknownTable      = errors.New("unknown table")
	ErrForbidden         = errors.New("forbidden")
)

// Enums and types
type ViewMode string

const (
	ViewModeCanvas ViewMode = "canvas"
	ViewModeKanban ViewMode = "kanban"
	ViewModeGrid   ViewMode = "grid"
)

// Content and title bounds
const (
	MaxPostContent    = 2000
	MaxCommentContent = 1000
	MaxTitleLength    = 120
)

const (
	DefaultNoteColor       = "#fef08a"
	DefaultBoardBackground = "#f8f7f4"
)

// ReactionEmojis is the closed set of reactions, in display order.
var ReactionEmojis = []string{"👍", "❤️", "💡", "🔥", "😮"}

// LabelOption describes one entry of the label vocabulary.
type LabelOption struct {
	Label      string `json:"label"`
	Color      string `json:"color"`
	Background string `json:"bg"`
}

var LabelOptions = []LabelOption{
	{Label: "Idea", Color: "#7c3aed", Background: "#ede9fe"},
	{Label: "Question", Color: "#0369a1", Background: "#e0f2fe"},
	{Label: "Important", Color: "#b91c1c", Background: "#fee2e2"},
	{Label: "Done", Color: "#15803d", Background: "#dcfce7"},
	{Label: "Revisit", Color: "#b45309", Background: "#fef3c7"},
	{Label: "Resource", Color: "#be185d", Background: "#fce7f3"},
}

var NoteColors = []string{
	"#fef08a", // yellow
	"#86efac", // green
	"#93c5fd", // blue
	"#f9a8d4", // pink
	"#fca5a5", // red
	"#fdba74", // orange
	"#e9d5ff", // purple
	"#ffffff", // white
}

var ColumnColors = []string{
	"#7c3aed", // violet
	"#2563eb", // blue
	"#059669", // emerald
	"#d97706", // amber
	"#dc2626", // red
	"#db2777", // pink
	"#0891b2", // cyan
	"#65a30d", // lime
}

// IsReactionEmoji reports whether emoji belongs to the reaction set.
func IsReactionEmoji(emoji string) bool {
	for _, e := range ReactionEmojis {
		if e == emoji {
			return true
		}
	}
	return false
}

// FindLabelOption returns the vocabulary entry for a label name.
func FindLabelOption(name string) (LabelOption, bool) {
	for _, l := range LabelOptions {
		if l.Label == name {
			return l, true
		}
	}
	return LabelOption{}, false
}

// Profile is the public projection of a user
type Profile struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName *string   `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Name returns the display name, falling back to the local part of the email.
func (p *Profile) Name() string {
	if p == nil {
		return "User"
	}
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	if p.Email != "" {
		return p.Email
	}
	return "User"
}

// Board represents a collaborative board
type Board struct {
	ID              string    `json:"id" db:"id"`
	OwnerID         string    `json:"owner_id" db:"owner_id" validate:"required"`
	Title           string    `json:"title" db:"title" validate:"required,max=120"`
	BackgroundColor string    `json:"background_color" db:"background_color" validate:"required"`
	ViewMode        ViewMode  `json:"view_mode" db:"view_mode" validate:"view_mode"`
	IsLocked        bool      `json:"is_locked" db:"is_locked"`
	IsPublic        bool      `json:"is_public" db:"is_public"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Column is an ordered Kanban bucket
type Column struct {
	ID        string    `json:"id" db:"id"`
	BoardID   string    `json:"board_id" db:"board_id" validate:"required"`
	Title     string    `json:"title" db:"title" validate:"required,max=120"`
	Color     string    `json:"color" db:"color"`
	Position  int       `json:"position" db:"position" validate:"gte=0"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Post is a sticky note
type Post struct {
	ID             string         `json:"id" db:"id"`
	BoardID        string         `json:"board_id" db:"board_id" validate:"required"`
	AuthorID       string         `json:"author_id" db:"author_id" validate:"required"`
	Content        string         `json:"content" db:"content" validate:"max=2000"`
	Color          string         `json:"color" db:"color"`
	PosX           float64        `json:"pos_x" db:"pos_x" validate:"gte=0"`
	PosY           float64        `json:"pos_y" db:"pos_y" validate:"gte=0"`
	ZIndex         int            `json:"z_index" db:"z_index"`
	ColumnID       *string        `json:"column_id" db:"column_id"`
	ColumnPosition int            `json:"column_position" db:"column_position" validate:"gte=0"`
	Labels         pq.StringArray `json:"labels" db:"labels" validate:"dive,post_label"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// InColumn reports whether the post belongs to the given column; nil means unassigned.
func (p *Post) InColumn(columnID *string) bool {
	if p.ColumnID == nil || columnID == nil {
		return p.ColumnID == nil && columnID == nil
	}
	return *p.ColumnID == *columnID
}

// Reaction is one user's emoji on one post
type Reaction struct {
	ID        string    `json:"id" db:"id"`
	PostID    string    `json:"post_id" db:"post_id" validate:"required"`
	UserID    string    `json:"user_id" db:"user_id" validate:"required"`
	Emoji     string    `json:"emoji" db:"emoji" validate:"reaction_emoji"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Matches reports whether the reaction is the given (post, emoji, user) triple.
func (r *Reaction) Matches(postID, emoji, userID string) bool {
	return r.PostID == postID && r.Emoji == emoji && r.UserID == userID
}

// Comment is a threaded remark on a post
type Comment struct {
	ID        string    `json:"id" db:"id"`
	PostID    string    `json:"post_id" db:"post_id" validate:"required"`
	AuthorID  string    `json:"author_id" db:"author_id" validate:"required"`
	Content   string    `json:"content" db:"content" validate:"required,max=1000"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Author    *Profile  `json:"author,omitempty" db:"-"`
}

// StringPtr is a convenience for optional column references.
func StringPtr(s string) *string {
	return &s
}
