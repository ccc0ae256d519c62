package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/labstack/echo/v4"

	httpadapter "github.com/classboard/core/internal/adapters/http"
	"github.com/classboard/core/internal/adapters/memory"
	"github.com/classboard/core/internal/adapters/realtime"
	"github.com/classboard/core/internal/application/services"
	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/config"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

var realtimeCfg = config.RealtimeConfig{PingInterval: 200 * time.Millisecond}

type fixture struct {
	t      *testing.T
	server *httptest.Server
	auth   *services.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := realtime.NewHub(16, nil)
	storage := realtime.NewPublishingStorage(memory.NewStorage(), hub, nil)
	auth := services.NewAuthService(config.JWTConfig{Secret: "remote-secret", ExpiresIn: time.Hour, Issuer: "classboard"}, nil)

	e := echo.New()
	httpadapter.RegisterRoutes(
		e.Group("/api/v1", httpadapter.RequireUser(auth, logger.NewNop())),
		httpadapter.NewTableHandler(storage, nil),
		httpadapter.NewRealtimeHandler(storage, hub, realtimeCfg, nil, nil),
	)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return &fixture{t: t, server: server, auth: auth}
}

func (f *fixture) client(user string) *Client {
	f.t.Helper()
	token := ""
	if user != "" {
		var err error
		token, err = f.auth.IssueToken(user, user+"@school.test")
		assert.Equal(f.t, err, nil)
	}
	c, err := NewClient(config.ClientConfig{GatewayURL: f.server.URL + "/", Token: token, Timeout: 5 * time.Second}, nil)
	assert.Equal(f.t, err, nil)
	return c
}

func (f *fixture) publicBoard(owner string) entities.Board {
	f.t.Helper()
	storage := NewStorage(f.client(owner))
	board, err := storage.Boards().Insert(context.Background(), entities.Board{Title: "Chemistry"})
	assert.Equal(f.t, err, nil)
	err = storage.Boards().Update(context.Background(), board.ID, ports.Fields{"is_public": true})
	assert.Equal(f.t, err, nil)
	return board
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(config.ClientConfig{GatewayURL: "ftp://example.com"}, nil)
	assert.NotEqual(t, err, nil)
}

func TestEncodeQuery(t *testing.T) {
	values := EncodeQuery(ports.Query{
		Filter: map[string]string{"board_id": "b1"},
		Order:  []ports.Order{{Column: "column_position"}, {Column: "created_at", Descending: true}},
	})

	assert.Equal(t, values.Get("board_id"), "b1")
	assert.Equal(t, values["order"], []string{"column_position", "created_at.desc"})
}

func TestStorageRoundTrip(t *testing.T) {
	f := newFixture(t)
	board := f.publicBoard("alice")
	assert.Equal(t, board.OwnerID, "alice")

	alice := NewStorage(f.client("alice"))
	ctx := context.Background()

	col, err := alice.Columns().Insert(ctx, entities.Column{BoardID: board.ID, Title: "Ideas", Color: "#ffffff"})
	assert.Equal(t, err, nil)

	post, err := alice.Posts().Insert(ctx, entities.Post{
		BoardID: board.ID, ColumnID: &col.ID, Content: "hello", Color: entities.DefaultNoteColor, ZIndex: 1,
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, post.AuthorID, "alice")

	assert.Equal(t, alice.Posts().Update(ctx, post.ID, ports.Fields{"content": "edited"}), nil)

	rows, err := alice.Posts().Select(ctx, ports.Query{Filter: map[string]string{"board_id": board.ID}})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0].Content, "edited")

	name := "Alice"
	assert.Equal(t, alice.Profiles().Upsert(ctx, entities.Profile{ID: "alice", Email: "alice@school.test", DisplayName: &name}), nil)
	profiles, err := alice.Profiles().GetByIDs(ctx, []string{"alice"})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(profiles), 1)
	assert.Equal(t, profiles[0].Name(), "Alice")

	assert.Equal(t, alice.Posts().Delete(ctx, post.ID), nil)
	rows, err = alice.Posts().Select(ctx, ports.Query{Filter: map[string]string{"board_id": board.ID}})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(rows), 0)
}

func TestStatusErrorsMapToDomain(t *testing.T) {
	f := newFixture(t)
	board := f.publicBoard("alice")
	ctx := context.Background()

	anonymous := NewStorage(f.client(""))
	_, err := anonymous.Boards().Select(ctx, ports.Query{})
	assert.Equal(t, errors.Is(err, entities.ErrUnauthenticated), true)

	bob := NewStorage(f.client("bob"))
	err = bob.Boards().Update(ctx, board.ID, ports.Fields{"title": "Mine now"})
	assert.Equal(t, errors.Is(err, entities.ErrForbidden), true)

	err = bob.Posts().Delete(ctx, "missing")
	assert.Equal(t, errors.Is(err, entities.ErrNotFound), true)

	var status *StatusError
	assert.Equal(t, errors.As(err, &status), true)
	assert.Equal(t, status.Code, 404)
}

func TestFeedDeliversChanges(t *testing.T) {
	f := newFixture(t)
	board := f.publicBoard("alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(f.client("bob"), realtimeCfg)
	changes, err := feed.Subscribe(ctx, ports.Subscription{BoardID: board.ID})
	assert.Equal(t, err, nil)

	alice := NewStorage(f.client("alice"))
	post, err := alice.Posts().Insert(context.Background(), entities.Post{
		BoardID: board.ID, Content: "ping", Color: entities.DefaultNoteColor, ZIndex: 1,
	})
	assert.Equal(t, err, nil)

	select {
	case change := <-changes:
		assert.Equal(t, change.Table, ports.TablePosts)
		assert.Equal(t, change.Event, ports.EventInsert)
		assert.Equal(t, change.ID, post.ID)
		assert.Equal(t, change.BoardID, board.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no change received")
	}

	cancel()
	select {
	case _, ok := <-changes:
		for ok {
			_, ok = <-changes
		}
	case <-time.After(3 * time.Second):
		t.Fatal("feed not closed after cancel")
	}
}

func TestFeedRejectsPrivateBoard(t *testing.T) {
	f := newFixture(t)
	storage := NewStorage(f.client("alice"))
	board, err := storage.Boards().Insert(context.Background(), entities.Board{Title: "Private"})
	assert.Equal(t, err, nil)

	_, err = NewFeed(f.client("bob"), realtimeCfg).Subscribe(context.Background(), ports.Subscription{BoardID: board.ID})
	assert.Equal(t, errors.Is(err, entities.ErrNotFound), true)
}

func TestSessionsShareABoard(t *testing.T) {
	f := newFixture(t)
	board := f.publicBoard("alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	open := func(user string) *services.BoardSession {
		c := f.client(user)
		session := services.NewBoardSession(NewStorage(c), NewFeed(c, realtimeCfg), user,
			services.SessionConfig{Spawn: services.DefaultSpawnArea}, nil, nil)
		assert.Equal(t, session.Open(ctx, board.ID), nil)
		t.Cleanup(session.Close)
		return session
	}
	alice := open("alice")
	bob := open("bob")

	seen := make(chan ports.Change, 4)
	bob.OnRemoteChange(func(change ports.Change) { seen <- change })

	post, err := alice.AddPost(ctx, ports.AddPostOptions{Content: "from alice"})
	assert.Equal(t, err, nil)

	select {
	case change := <-seen:
		assert.Equal(t, change.ID, post.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("bob never saw alice's post")
	}
	got, ok := bob.Posts().Get(post.ID)
	assert.Equal(t, ok, true)
	assert.Equal(t, got.Content, "from alice")

	assert.Equal(t, bob.IsOwner(), false)
	assert.Equal(t, bob.CanEdit(), true)
}
