package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

var errRemote = errors.New("remote unavailable")

// fakeRepo is an in-memory table. The on* hooks run before each call and may block to hold
// the call in flight.
type fakeRepo[T any] struct {
	mu     sync.Mutex
	idOf   func(T) string
	withID func(T, string) T
	rows   []T
	seq    int

	selectErr error
	insertErr error
	updateErr error
	deleteErr error

	onSelect func(q ports.Query)
	onInsert func()
	onUpdate func(id string)

	selects int
	updates []string
	deletes []string
}

func (r *fakeRepo[T]) Select(ctx context.Context, q ports.Query) ([]T, error) {
	if r.onSelect != nil {
		r.onSelect(q)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selects++
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	var out []T
	for _, row := range r.rows {
		if matches(row, q.Filter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRepo[T]) Insert(ctx context.Context, row T) (T, error) {
	if r.onInsert != nil {
		r.onInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		var zero T
		return zero, r.insertErr
	}
	r.seq++
	row = r.withID(row, fmt.Sprintf("row-%d", r.seq))
	r.rows = append(r.rows, row)
	return row, nil
}

func (r *fakeRepo[T]) Update(ctx context.Context, id string, fields ports.Fields) error {
	if r.onUpdate != nil {
		r.onUpdate(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, id)
	if r.updateErr != nil {
		return r.updateErr
	}
	for i, row := range r.rows {
		if r.idOf(row) == id {
			updated, err := ports.ApplyFields(row, fields)
			if err != nil {
				return err
			}
			r.rows[i] = updated
			return nil
		}
	}
	return entities.ErrNotFound
}

func (r *fakeRepo[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for i, row := range r.rows {
		if r.idOf(row) == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRepo[T]) row(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if r.idOf(row) == id {
			return row, true
		}
	}
	var zero T
	return zero, false
}

func (r *fakeRepo[T]) selectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selects
}

func (r *fakeRepo[T]) updatedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.updates...)
}

// matches compares filter values against the row's JSON fields; columns the row does not have
// are ignored
func matches(row interface{}, filter ports.Filter) bool {
	raw, _ := json.Marshal(row)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	for column, want := range filter {
		got, ok := m[column]
		if !ok {
			continue
		}
		if fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]entities.Profile
}

func (p *fakeProfiles) GetByIDs(ctx context.Context, ids []string) ([]entities.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []entities.Profile
	for _, id := range ids {
		if profile, ok := p.profiles[id]; ok {
			out = append(out, profile)
		}
	}
	return out, nil
}

func (p *fakeProfiles) Upsert(ctx context.Context, profile entities.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.ID] = profile
	return nil
}

type fakeStorage struct {
	boards    *fakeRepo[entities.Board]
	columns   *fakeRepo[entities.Column]
	posts     *fakeRepo[entities.Post]
	reactions *fakeRepo[entities.Reaction]
	comments  *fakeRepo[entities.Comment]
	profiles  *fakeProfiles
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		boards: &fakeRepo[entities.Board]{
			idOf:   func(b entities.Board) string { return b.ID },
			withID: func(b entities.Board, id string) entities.Board { b.ID = id; return b },
		},
		columns: &fakeRepo[entities.Column]{
			idOf:   func(c entities.Column) string { return c.ID },
			withID: func(c entities.Column, id string) entities.Column { c.ID = id; return c },
		},
		posts: &fakeRepo[entities.Post]{
			idOf:   func(p entities.Post) string { return p.ID },
			withID: func(p entities.Post, id string) entities.Post { p.ID = id; return p },
		},
		reactions: &fakeRepo[entities.Reaction]{
			idOf:   func(r entities.Reaction) string { return r.ID },
			withID: func(r entities.Reaction, id string) entities.Reaction { r.ID = id; return r },
		},
		comments: &fakeRepo[entities.Comment]{
			idOf:   func(c entities.Comment) string { return c.ID },
			withID: func(c entities.Comment, id string) entities.Comment { c.ID = id; return c },
		},
		profiles: &fakeProfiles{profiles: make(map[string]entities.Profile)},
	}
}

func (s *fakeStorage) Boards() ports.Repository[entities.Board]       { return s.boards }
func (s *fakeStorage) Columns() ports.Repository[entities.Column]     { return s.columns }
func (s *fakeStorage) Posts() ports.Repository[entities.Post]         { return s.posts }
func (s *fakeStorage) Reactions() ports.Repository[entities.Reaction] { return s.reactions }
func (s *fakeStorage) Comments() ports.Repository[entities.Comment]   { return s.comments }
func (s *fakeStorage) Profiles() ports.ProfileRepository              { return s.profiles }

// fakeFeed hands out channels the test drives directly
type fakeFeed struct {
	mu         sync.Mutex
	subscribed chan string
	channels   []chan ports.Change
	contexts   []context.Context
	failNext   int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subscribed: make(chan string, 16)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, sub ports.Subscription) (<-chan ports.Change, error) {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return nil, errRemote
	}
	ch := make(chan ports.Change, 16)
	f.channels = append(f.channels, ch)
	f.contexts = append(f.contexts, ctx)
	f.mu.Unlock()
	f.subscribed <- sub.BoardID
	return ch, nil
}

func (f *fakeFeed) last() chan ports.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[len(f.channels)-1]
}

func (f *fakeFeed) context(i int) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contexts[i]
}

func waitSubscribed(t *testing.T, f *fakeFeed) string {
	t.Helper()
	select {
	case boardID := <-f.subscribed:
		return boardID
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription")
		return ""
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func mustChange(t *testing.T, table ports.Table, event ports.ChangeEvent, boardID, id string, row interface{}) ports.Change {
	t.Helper()
	change, err := ports.NewChange(table, event, boardID, id, row)
	if err != nil {
		t.Fatal(err)
	}
	return change
}

func seedPost(id, boardID, authorID string, columnID *string, position int) entities.Post {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return entities.Post{
		ID:             id,
		BoardID:        boardID,
		AuthorID:       authorID,
		Content:        "note " + id,
		Color:          entities.DefaultNoteColor,
		PosX:           100,
		PosY:           100,
		ZIndex:         position + 1,
		ColumnID:       columnID,
		ColumnPosition: position,
		Labels:         []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
