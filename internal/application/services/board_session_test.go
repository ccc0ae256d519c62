package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

func newSessionStorage() *fakeStorage {
	storage := newFakeStorage()
	ada, bo := "Ada", "Bo"
	storage.profiles.profiles["owner"] = entities.Profile{ID: "owner", Email: "owner@school.test", DisplayName: &ada}
	storage.profiles.profiles["student"] = entities.Profile{ID: "student", Email: "bo@school.test", DisplayName: &bo}
	storage.profiles.profiles["other"] = entities.Profile{ID: "other", Email: "kim@school.test"}
	storage.boards.rows = []entities.Board{{
		ID:              "b1",
		OwnerID:         "owner",
		Title:           "Week 1",
		BackgroundColor: entities.DefaultBoardBackground,
		ViewMode:        entities.ViewModeCanvas,
	}}
	storage.columns.rows = []entities.Column{{ID: "col", BoardID: "b1", Title: "Ideas", Position: 0}}

	p1 := seedPost("p1", "b1", "student", nil, 0)
	p1.ZIndex = 3
	p2 := seedPost("p2", "b1", "other", nil, 1)
	p2.ZIndex = 9
	storage.posts.rows = []entities.Post{p1, p2}
	storage.reactions.rows = []entities.Reaction{{ID: "r1", PostID: "p1", UserID: "other", Emoji: "❤️"}}
	storage.comments.rows = []entities.Comment{{ID: "c1", PostID: "p1", AuthorID: "other", Content: "agreed"}}
	return storage
}

func openSession(t *testing.T, storage *fakeStorage, userID string) *BoardSession {
	t.Helper()
	session := NewBoardSession(storage, nil, userID, SessionConfig{}, nil, nil)
	if err := session.Open(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}
	return session
}

func lockBoard(storage *fakeStorage) {
	storage.boards.mu.Lock()
	storage.boards.rows[0].IsLocked = true
	storage.boards.mu.Unlock()
}

func TestSessionOpenLoadsBoard(t *testing.T) {
	session := openSession(t, newSessionStorage(), "student")

	board, ok := session.Board()
	assert.Equal(t, ok, true)
	assert.Equal(t, board.Title, "Week 1")
	assert.Equal(t, session.Posts().Len(), 2)
	assert.Equal(t, session.Columns().Len(), 1)
	assert.Equal(t, session.Reactions().Len(), 1)
	assert.Equal(t, session.AuthorName("student"), "Bo")
	assert.Equal(t, session.AuthorName("other"), "kim")
	assert.Equal(t, session.AuthorName("stranger"), "User")
}

func TestSessionOpenUnknownBoard(t *testing.T) {
	session := NewBoardSession(newSessionStorage(), nil, "student", SessionConfig{}, nil, nil)

	err := session.Open(context.Background(), "missing")

	assert.Equal(t, errors.Is(err, entities.ErrBoardNotFound), true)
}

func TestSessionOpenSubscribes(t *testing.T) {
	feed := newFakeFeed()
	session := NewBoardSession(newSessionStorage(), feed, "student", SessionConfig{}, nil, nil)
	defer session.Close()

	assert.Equal(t, session.Open(context.Background(), "b1"), nil)
	assert.Equal(t, waitSubscribed(t, feed), "b1")
	assert.Equal(t, session.Bridge().State(), BridgeActive)
}

func TestSessionNotifiesRemoteChangeListeners(t *testing.T) {
	feed := newFakeFeed()
	session := NewBoardSession(newSessionStorage(), feed, "student", SessionConfig{}, nil, nil)
	defer session.Close()

	var first, second int32
	session.OnRemoteChange(func(ports.Change) { atomic.AddInt32(&first, 1) })
	session.OnRemoteChange(func(ports.Change) { atomic.AddInt32(&second, 1) })

	assert.Equal(t, session.Open(context.Background(), "b1"), nil)
	waitSubscribed(t, feed)
	feed.last() <- mustChange(t, ports.TablePosts, ports.EventInsert, "b1", "p9", seedPost("p9", "b1", "owner", nil, 2))

	eventually(t, func() bool {
		return atomic.LoadInt32(&first) == 1 && atomic.LoadInt32(&second) == 1
	})
	_, ok := session.Posts().Get("p9")
	assert.Equal(t, ok, true)
	assert.Equal(t, session.AuthorName("owner"), "Ada")
}

func TestSessionPermissions(t *testing.T) {
	storage := newSessionStorage()
	student := openSession(t, storage, "student")
	owner := openSession(t, storage, "owner")
	p1, _ := student.Posts().Get("p1")
	p2, _ := student.Posts().Get("p2")

	assert.Equal(t, student.IsOwner(), false)
	assert.Equal(t, student.CanEdit(), true)
	assert.Equal(t, student.CanEditPost(p1), true)
	assert.Equal(t, student.CanEditPost(p2), false)
	assert.Equal(t, student.CanDeletePost(p2), false)
	assert.Equal(t, owner.IsOwner(), true)
	assert.Equal(t, owner.CanEditPost(p1), false)
	assert.Equal(t, owner.CanDeletePost(p1), true)
}

func TestLockedBoardIsReadOnlyForNonOwners(t *testing.T) {
	storage := newSessionStorage()
	lockBoard(storage)
	student := openSession(t, storage, "student")
	owner := openSession(t, storage, "owner")
	ctx := context.Background()

	_, err := student.AddPost(ctx, ports.AddPostOptions{Content: "late"})
	assert.Equal(t, errors.Is(err, entities.ErrBoardLocked), true)
	_, err = student.MovePost(ctx, "p1", 10, 10)
	assert.Equal(t, errors.Is(err, entities.ErrBoardLocked), true)
	_, err = student.ToggleReaction(ctx, "p2", "👍")
	assert.Equal(t, errors.Is(err, entities.ErrBoardLocked), true)
	assert.Equal(t, errors.Is(student.EditPost(ctx, "p1", "x"), entities.ErrBoardLocked), true)
	assert.Equal(t, IsPermissionError(err), true)

	_, err = owner.AddPost(ctx, ports.AddPostOptions{Content: "owner note"})
	assert.Equal(t, err, nil)
}

func TestOnlyAuthorEditsContent(t *testing.T) {
	storage := newSessionStorage()
	student := openSession(t, storage, "student")
	ctx := context.Background()

	assert.Equal(t, errors.Is(student.EditPost(ctx, "p2", "mine now"), entities.ErrNotPostAuthor), true)
	assert.Equal(t, student.EditPost(ctx, "p1", "revised"), nil)
	assert.Equal(t, student.SetPostLabels(ctx, "p1", []string{"Idea", "Done"}), nil)
	assert.Equal(t, errors.Is(student.SetPostLabels(ctx, "p1", []string{"Nope"}), entities.ErrInvalidLabel), true)

	remote, _ := storage.posts.row("p1")
	assert.Equal(t, remote.Content, "revised")
	assert.Equal(t, []string(remote.Labels), []string{"Idea", "Done"})
}

func TestOwnerDeletesAnyPost(t *testing.T) {
	storage := newSessionStorage()
	student := openSession(t, storage, "student")
	owner := openSession(t, storage, "owner")
	ctx := context.Background()

	assert.Equal(t, errors.Is(student.DeletePost(ctx, "p2"), entities.ErrNotPostAuthor), true)
	assert.Equal(t, owner.DeletePost(ctx, "p2"), nil)
	_, ok := storage.posts.row("p2")
	assert.Equal(t, ok, false)
}

func TestMovePostPersistsClampedPosition(t *testing.T) {
	storage := newSessionStorage()
	session := openSession(t, storage, "student")

	to, err := session.MovePost(context.Background(), "p1", -500, 25)

	assert.Equal(t, err, nil)
	assert.Equal(t, to, Point{X: 0, Y: 125})
	remote, _ := storage.posts.row("p1")
	assert.Equal(t, remote.PosX, 0.0)
	assert.Equal(t, remote.PosY, 125.0)
	assert.Equal(t, remote.ZIndex, 3)
}

func TestBringToFrontCountsFromMaxZ(t *testing.T) {
	storage := newSessionStorage()
	session := openSession(t, storage, "student")
	ctx := context.Background()

	var got []int
	for _, id := range []string{"p1", "p2", "p1"} {
		z, err := session.BringToFront(ctx, id)
		assert.Equal(t, err, nil)
		got = append(got, z)
	}

	assert.Equal(t, got, []int{10, 11, 12})
	remote, _ := storage.posts.row("p1")
	assert.Equal(t, remote.ZIndex, 12)
}

func TestAddPostDefaults(t *testing.T) {
	storage := newSessionStorage()
	session := openSession(t, storage, "student")
	session.Posts().random = func() float64 { return 0.5 }

	post, err := session.AddPost(context.Background(), ports.AddPostOptions{Content: "hi"})

	assert.Equal(t, err, nil)
	assert.Equal(t, post.PosX, 330.0)
	assert.Equal(t, post.PosY, 255.0)
	assert.Equal(t, post.ZIndex, 3)
	assert.Equal(t, post.Color, entities.DefaultNoteColor)
	assert.Equal(t, post.AuthorID, "student")
	assert.Equal(t, post.ColumnPosition, 2)
}

func TestAddPostToColumnAppends(t *testing.T) {
	storage := newSessionStorage()
	session := openSession(t, storage, "student")
	ctx := context.Background()

	first, err := session.AddPost(ctx, ports.AddPostOptions{ColumnID: entities.StringPtr("col")})
	assert.Equal(t, err, nil)
	second, err := session.AddPost(ctx, ports.AddPostOptions{ColumnID: entities.StringPtr("col")})
	assert.Equal(t, err, nil)
	assert.Equal(t, first.ColumnPosition, 0)
	assert.Equal(t, second.ColumnPosition, 1)

	_, err = session.AddPost(ctx, ports.AddPostOptions{ColumnID: entities.StringPtr("nope")})
	assert.Equal(t, errors.Is(err, entities.ErrColumnNotFound), true)
}

func TestBoardManagementIsOwnerOnly(t *testing.T) {
	storage := newSessionStorage()
	student := openSession(t, storage, "student")
	owner := openSession(t, storage, "owner")
	ctx := context.Background()

	assert.Equal(t, errors.Is(student.SetViewMode(ctx, entities.ViewModeKanban), entities.ErrNotBoardOwner), true)
	_, err := student.AddColumn(ctx, "Mine", "")
	assert.Equal(t, errors.Is(err, entities.ErrNotBoardOwner), true)

	assert.Equal(t, owner.SetViewMode(ctx, entities.ViewModeKanban), nil)
	assert.Equal(t, owner.SetLocked(ctx, true), nil)
	board, _ := owner.Board()
	assert.Equal(t, board.ViewMode, entities.ViewModeKanban)
	assert.Equal(t, board.IsLocked, true)
	assert.Equal(t, storage.boards.rows[0].IsLocked, true)
}

func TestDeleteColumnUnassignsPosts(t *testing.T) {
	storage := newSessionStorage()
	owner := openSession(t, storage, "owner")
	ctx := context.Background()
	post, err := owner.AddPost(ctx, ports.AddPostOptions{ColumnID: entities.StringPtr("col")})
	assert.Equal(t, err, nil)

	assert.Equal(t, owner.DeleteColumn(ctx, "col"), nil)

	local, _ := owner.Posts().Get(post.ID)
	assert.Equal(t, local.ColumnID == nil, true)
	assert.Equal(t, owner.Columns().Len(), 0)
}

func TestCommentThread(t *testing.T) {
	storage := newSessionStorage()
	student := openSession(t, storage, "student")
	ctx := context.Background()

	assert.Equal(t, student.OpenComments(ctx, "p1"), nil)
	assert.Equal(t, student.Comments().Len(), 1)

	comment, err := student.AddComment(ctx, "me too")
	assert.Equal(t, err, nil)
	assert.Equal(t, comment.Author.Name(), "Bo")
	assert.Equal(t, student.Comments().Len(), 2)

	assert.Equal(t, errors.Is(student.DeleteComment(ctx, "c1"), entities.ErrNotCommentAuthor), true)
	assert.Equal(t, student.DeleteComment(ctx, comment.ID), nil)
	assert.Equal(t, student.Comments().Len(), 1)

	student.CloseComments(ctx)
	assert.Equal(t, student.Comments().Len(), 0)
}

func TestSessionKanbanDrag(t *testing.T) {
	storage := newSessionStorage()
	session := openSession(t, storage, "student")
	ctx := context.Background()

	assert.Equal(t, session.DragStart("p1"), nil)
	assert.Equal(t, session.DragOver("col"), nil)
	writes, err := session.DragDrop(ctx, "col")

	assert.Equal(t, err, nil)
	assert.Equal(t, writes, []PositionWrite{{ID: "p1", Position: 0}})
	view := session.KanbanView()
	assert.Equal(t, cardIDs(view.Lanes[0].Cards), []string{"p1"})
	assert.Equal(t, cardIDs(view.Lanes[1].Cards), []string{"p2"})
}

func TestSessionViewsDecorateCards(t *testing.T) {
	session := openSession(t, newSessionStorage(), "student")

	view := session.CanvasView()

	assert.Equal(t, cardIDs(view.Cards), []string{"p1", "p2"})
	first := view.Cards[0]
	assert.Equal(t, first.AuthorName, "Bo")
	assert.Equal(t, first.CanEdit, true)
	assert.Equal(t, first.Reactions, []ReactionSummary{{Emoji: "❤️", Count: 1, Mine: false}})
	assert.Equal(t, view.Cards[1].CanDelete, false)
	assert.Equal(t, len(session.GridView().Cards), 2)
}
