// Package memory is an in-process store of record used by the development gateway and tests.
// It mirrors the constraints of the Postgres schema: foreign keys, cascades and the reaction
// uniqueness triple.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

// ErrConstraint is returned when a write would break a foreign key or uniqueness rule
var ErrConstraint = errors.New("constraint violation")

// Storage is a mutex-guarded set of tables
type Storage struct {
	mu  sync.RWMutex
	now func() time.Time

	boards    *table[entities.Board]
	columns   *table[entities.Column]
	posts     *table[entities.Post]
	reactions *table[entities.Reaction]
	comments  *table[entities.Comment]
	profiles  map[string]entities.Profile
}

// NewStorage creates an empty store
func NewStorage() *Storage {
	s := &Storage{
		now:      func() time.Time { return time.Now().UTC() },
		profiles: make(map[string]entities.Profile),
	}

	s.boards = &table[entities.Board]{
		s:    s,
		name: ports.TableBoards,
		id:   func(b *entities.Board) *string { return &b.ID },
		field: func(b entities.Board, column string) interface{} {
			switch column {
			case "id":
				return b.ID
			case "owner_id":
				return b.OwnerID
			case "title":
				return b.Title
			case "created_at":
				return b.CreatedAt
			case "updated_at":
				return b.UpdatedAt
			}
			return nil
		},
		stamp: func(b *entities.Board, now time.Time, created bool) {
			if created {
				b.CreatedAt = now
			}
			b.UpdatedAt = now
		},
		cascade: func(b entities.Board) {
			for _, p := range s.posts.where(func(p entities.Post) bool { return p.BoardID == b.ID }) {
				s.posts.remove(p.ID)
			}
			for _, c := range s.columns.where(func(c entities.Column) bool { return c.BoardID == b.ID }) {
				s.columns.remove(c.ID)
			}
		},
	}

	s.columns = &table[entities.Column]{
		s:    s,
		name: ports.TableColumns,
		id:   func(c *entities.Column) *string { return &c.ID },
		field: func(c entities.Column, column string) interface{} {
			switch column {
			case "id":
				return c.ID
			case "board_id":
				return c.BoardID
			case "position":
				return c.Position
			case "created_at":
				return c.CreatedAt
			}
			return nil
		},
		stamp: func(c *entities.Column, now time.Time, created bool) {
			if created {
				c.CreatedAt = now
			}
		},
		check: func(c entities.Column) error {
			if !s.boards.has(c.BoardID) {
				return fmt.Errorf("column board %s: %w", c.BoardID, ErrConstraint)
			}
			return nil
		},
		cascade: func(c entities.Column) {
			// posts.column_id is ON DELETE SET NULL
			for i := range s.posts.rows {
				if p := &s.posts.rows[i]; p.ColumnID != nil && *p.ColumnID == c.ID {
					p.ColumnID = nil
				}
			}
		},
	}

	s.posts = &table[entities.Post]{
		s:    s,
		name: ports.TablePosts,
		id:   func(p *entities.Post) *string { return &p.ID },
		field: func(p entities.Post, column string) interface{} {
			switch column {
			case "id":
				return p.ID
			case "board_id":
				return p.BoardID
			case "author_id":
				return p.AuthorID
			case "column_position":
				return p.ColumnPosition
			case "z_index":
				return p.ZIndex
			case "created_at":
				return p.CreatedAt
			}
			return nil
		},
		stamp: func(p *entities.Post, now time.Time, created bool) {
			if created {
				p.CreatedAt = now
				if p.Labels == nil {
					p.Labels = []string{}
				}
			}
			p.UpdatedAt = now
		},
		check: func(p entities.Post) error {
			if !s.boards.has(p.BoardID) {
				return fmt.Errorf("post board %s: %w", p.BoardID, ErrConstraint)
			}
			if p.ColumnID != nil && !s.columns.has(*p.ColumnID) {
				return fmt.Errorf("post column %s: %w", *p.ColumnID, ErrConstraint)
			}
			return nil
		},
		cascade: func(p entities.Post) {
			for _, r := range s.reactions.where(func(r entities.Reaction) bool { return r.PostID == p.ID }) {
				s.reactions.remove(r.ID)
			}
			for _, c := range s.comments.where(func(c entities.Comment) bool { return c.PostID == p.ID }) {
				s.comments.remove(c.ID)
			}
		},
	}

	s.reactions = &table[entities.Reaction]{
		s:    s,
		name: ports.TableReactions,
		id:   func(r *entities.Reaction) *string { return &r.ID },
		field: func(r entities.Reaction, column string) interface{} {
			switch column {
			case "id":
				return r.ID
			case "post_id":
				return r.PostID
			case "user_id":
				return r.UserID
			case "board_id":
				if p, ok := s.posts.get(r.PostID); ok {
					return p.BoardID
				}
				return nil
			case "created_at":
				return r.CreatedAt
			}
			return nil
		},
		stamp: func(r *entities.Reaction, now time.Time, created bool) {
			if created {
				r.CreatedAt = now
			}
		},
		check: func(r entities.Reaction) error {
			if !s.posts.has(r.PostID) {
				return fmt.Errorf("reaction post %s: %w", r.PostID, ErrConstraint)
			}
			dup := s.reactions.where(func(o entities.Reaction) bool {
				return o.ID != r.ID && o.Matches(r.PostID, r.Emoji, r.UserID)
			})
			if len(dup) > 0 {
				return fmt.Errorf("duplicate reaction: %w", ErrConstraint)
			}
			return nil
		},
	}

	s.comments = &table[entities.Comment]{
		s:    s,
		name: ports.TableComments,
		id:   func(c *entities.Comment) *string { return &c.ID },
		field: func(c entities.Comment, column string) interface{} {
			switch column {
			case "id":
				return c.ID
			case "post_id":
				return c.PostID
			case "author_id":
				return c.AuthorID
			case "created_at":
				return c.CreatedAt
			}
			return nil
		},
		stamp: func(c *entities.Comment, now time.Time, created bool) {
			if created {
				c.CreatedAt = now
			}
			c.Author = nil
		},
		check: func(c entities.Comment) error {
			if !s.posts.has(c.PostID) {
				return fmt.Errorf("comment post %s: %w", c.PostID, ErrConstraint)
			}
			return nil
		},
		project: func(c entities.Comment) entities.Comment {
			if profile, ok := s.profiles[c.AuthorID]; ok {
				c.Author = &profile
			}
			return c
		},
	}

	return s
}

func (s *Storage) Boards() ports.Repository[entities.Board]       { return s.boards }
func (s *Storage) Columns() ports.Repository[entities.Column]     { return s.columns }
func (s *Storage) Posts() ports.Repository[entities.Post]         { return s.posts }
func (s *Storage) Reactions() ports.Repository[entities.Reaction] { return s.reactions }
func (s *Storage) Comments() ports.Repository[entities.Comment]   { return s.comments }
func (s *Storage) Profiles() ports.ProfileRepository              { return (*profileTable)(s) }

type profileTable Storage

func (p *profileTable) GetByIDs(_ context.Context, ids []string) ([]entities.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []entities.Profile
	for _, id := range ids {
		if profile, ok := p.profiles[id]; ok {
			out = append(out, profile)
		}
	}
	return out, nil
}

func (p *profileTable) Upsert(_ context.Context, profile entities.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.profiles[profile.ID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = p.now()
	}
	p.profiles[profile.ID] = profile
	return nil
}

// table holds the rows of one entity type in insertion order. Its hooks run with the
// storage lock held.
type table[T any] struct {
	s       *Storage
	name    ports.Table
	rows    []T
	id      func(*T) *string
	field   func(T, string) interface{}
	stamp   func(row *T, now time.Time, created bool)
	check   func(T) error
	cascade func(T)
	project func(T) T
}

func (t *table[T]) Select(_ context.Context, q ports.Query) ([]T, error) {
	if err := ports.CheckQuery(t.name, q); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := []T{}
	for _, row := range t.rows {
		if t.matches(row, q.Filter) {
			if t.project != nil {
				row = t.project(row)
			}
			out = append(out, row)
		}
	}

	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(t.field(out[i], o.Column), t.field(out[j], o.Column))
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out, nil
}

func (t *table[T]) Insert(_ context.Context, row T) (T, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	*t.id(&row) = uuid.NewString()
	t.stamp(&row, t.s.now(), true)
	if t.check != nil {
		if err := t.check(row); err != nil {
			var zero T
			return zero, fmt.Errorf("insert %s: %w", t.name, err)
		}
	}
	t.rows = append(t.rows, row)

	if t.project != nil {
		row = t.project(row)
	}
	return row, nil
}

func (t *table[T]) Update(_ context.Context, id string, fields ports.Fields) error {
	normalized, err := ports.NormalizeFields(t.name, fields)
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return fmt.Errorf("update %s: no fields", t.name)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	i := t.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", t.name, id, entities.ErrNotFound)
	}

	updated, err := ports.ApplyFields(t.rows[i], normalized)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	*t.id(&updated) = id
	t.stamp(&updated, t.s.now(), false)
	if t.check != nil {
		if err := t.check(updated); err != nil {
			return fmt.Errorf("update %s: %w", t.name, err)
		}
	}
	t.rows[i] = updated
	return nil
}

func (t *table[T]) Delete(_ context.Context, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if !t.remove(id) {
		return fmt.Errorf("%s %s: %w", t.name, id, entities.ErrNotFound)
	}
	return nil
}

// remove deletes one row and runs its cascade
func (t *table[T]) remove(id string) bool {
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	row := t.rows[i]
	t.rows = append(t.rows[:i:i], t.rows[i+1:]...)
	if t.cascade != nil {
		t.cascade(row)
	}
	return true
}

func (t *table[T]) indexOf(id string) int {
	for i := range t.rows {
		if *t.id(&t.rows[i]) == id {
			return i
		}
	}
	return -1
}

func (t *table[T]) has(id string) bool {
	return t.indexOf(id) >= 0
}

func (t *table[T]) get(id string) (T, bool) {
	if i := t.indexOf(id); i >= 0 {
		return t.rows[i], true
	}
	var zero T
	return zero, false
}

func (t *table[T]) where(keep func(T) bool) []T {
	var out []T
	for _, row := range t.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func (t *table[T]) matches(row T, filter ports.Filter) bool {
	for column, want := range filter {
		got, ok := t.field(row, column).(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case int:
		y, _ := b.(int)
		return x - y
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	return 0
}
