package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/config"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// SessionConfig tunes a board session
type SessionConfig struct {
	ReactionToggleGuard bool
	Spawn               SpawnArea
	Reconnect           ReconnectPolicy
}

// NewSessionConfig derives session settings from the application config
func NewSessionConfig(cfg *config.Config) SessionConfig {
	return SessionConfig{
		ReactionToggleGuard: cfg.Sync.ReactionToggleGuard,
		Spawn: SpawnArea{
			Margin: cfg.Sync.SpawnMargin,
			Width:  float64(cfg.Sync.SpawnWidth),
			Height: float64(cfg.Sync.SpawnHeight),
		},
		Reconnect: ReconnectPolicy{
			Enabled: cfg.Realtime.Reconnect,
			Min:     cfg.Realtime.ReconnectMin,
			Max:     cfg.Realtime.ReconnectMax,
		},
	}
}

// BoardSession composes the stores, the realtime bridge and the ordering helpers for the board
// a user has open. It derives permissions and routes user intents to the right store.
type BoardSession struct {
	userID  string
	storage ports.Storage
	logger  *logger.Logger
	pending *PendingWrites

	board     *BoardStore
	columns   *ColumnStore
	posts     *PostStore
	reactions *ReactionStore
	comments  *CommentStore
	bridge    *RealtimeBridge
	z         *ZCounter
	drag      *KanbanDrag

	mu        sync.RWMutex
	authors   map[string]*entities.Profile
	listeners []func(ports.Change)
}

// NewBoardSession wires a session for userID. feed may be nil, in which case the session never
// receives other clients' changes.
func NewBoardSession(storage ports.Storage, feed ports.ChangeFeed, userID string, cfg SessionConfig, log *logger.Logger, metrics ports.SyncMetrics) *BoardSession {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	log = log.WithUserID(userID)

	pending := NewPendingWrites()
	s := &BoardSession{
		userID:    userID,
		storage:   storage,
		logger:    log.WithComponent("board_session"),
		pending:   pending,
		board:     NewOpenBoardStore(storage.Boards(), pending, log, metrics),
		columns:   NewColumnStore(storage.Columns(), pending, log, metrics),
		posts:     NewPostStore(storage.Posts(), pending, cfg.Spawn, log, metrics),
		reactions: NewReactionStore(storage.Reactions(), pending, cfg.ReactionToggleGuard, log, metrics),
		comments:  NewCommentStore(storage.Comments(), pending, log, metrics),
		authors:   make(map[string]*entities.Profile),
	}
	s.z = NewZCounter(s.posts.MaxZ)
	s.posts.LinkColumns(s.columns)
	s.drag = NewKanbanDrag(s.posts, s.columns)
	if feed != nil {
		s.bridge = NewRealtimeBridge(feed, s.posts, s.reactions, cfg.Reconnect, log, metrics)
		s.bridge.OnApplied(s.handleRemoteChange)
	}
	return s
}

// Open loads boardID and subscribes to its changes. ctx bounds the lifetime of the realtime
// subscription. Opening another board while a load is in flight discards the older results.
func (s *BoardSession) Open(ctx context.Context, boardID string) error {
	if s.userID == "" {
		return entities.ErrUnauthenticated
	}

	s.z.Reset()
	s.drag.Cancel()
	s.comments.Fetch(ctx, "")

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error { return s.board.Fetch(ctx, boardID) })
	p.Go(func(ctx context.Context) error { return s.columns.Fetch(ctx, boardID) })
	p.Go(func(ctx context.Context) error { return s.posts.Fetch(ctx, boardID) })
	p.Go(func(ctx context.Context) error { return s.reactions.Fetch(ctx, boardID) })
	if err := p.Wait(); err != nil {
		return fmt.Errorf("open board %s: %w", boardID, err)
	}

	if s.board.Scope() != boardID {
		// superseded by a later Open
		return nil
	}
	if _, ok := s.Board(); !ok {
		return fmt.Errorf("open board %s: %w", boardID, entities.ErrBoardNotFound)
	}

	ids := []string{s.userID}
	for _, post := range s.posts.Snapshot() {
		ids = append(ids, post.AuthorID)
	}
	if err := s.ensureAuthors(ctx, ids); err != nil {
		s.logger.Warnw("Failed to resolve authors", "board_id", boardID, "error", err.Error())
	}

	if s.bridge != nil {
		if err := s.bridge.Activate(ctx, boardID); err != nil {
			return err
		}
	}

	s.logger.Infow("Board opened", "board_id", boardID, "posts", s.posts.Len(), "columns", s.columns.Len())
	return nil
}

// Close drops the realtime subscription
func (s *BoardSession) Close() {
	if s.bridge != nil {
		s.bridge.Close()
	}
}

// OnRemoteChange registers a callback for changes from other clients that altered local state
func (s *BoardSession) OnRemoteChange(fn func(ports.Change)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *BoardSession) handleRemoteChange(change ports.Change) {
	if change.Table == ports.TablePosts && change.Event != ports.EventDelete {
		if post, ok := s.posts.Get(change.ID); ok {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.ensureAuthors(ctx, []string{post.AuthorID}); err != nil {
				s.logger.Debugw("Failed to resolve author", "author_id", post.AuthorID, "error", err.Error())
			}
			cancel()
		}
	}

	s.mu.RLock()
	listeners := make([]func(ports.Change), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(change)
	}
}

func (s *BoardSession) ensureAuthors(ctx context.Context, ids []string) error {
	s.mu.RLock()
	var missing []string
	seen := make(map[string]bool)
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := s.authors[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	profiles, err := s.storage.Profiles().GetByIDs(ctx, missing)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range profiles {
		profile := profiles[i]
		s.authors[profile.ID] = &profile
	}
	return nil
}

// Author returns the cached profile of a user
func (s *BoardSession) Author(userID string) *entities.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authors[userID]
}

// AuthorName returns the display name of a user
func (s *BoardSession) AuthorName(userID string) string {
	return s.Author(userID).Name()
}

// UserID returns the signed-in user
func (s *BoardSession) UserID() string { return s.userID }

// Posts returns the post store
func (s *BoardSession) Posts() *PostStore { return s.posts }

// Columns returns the column store
func (s *BoardSession) Columns() *ColumnStore { return s.columns }

// Reactions returns the reaction store
func (s *BoardSession) Reactions() *ReactionStore { return s.reactions }

// Comments returns the comment store of the open thread
func (s *BoardSession) Comments() *CommentStore { return s.comments }

// Bridge returns the realtime bridge, nil without a change feed
func (s *BoardSession) Bridge() *RealtimeBridge { return s.bridge }

// Pending returns the session's pending-write tracker
func (s *BoardSession) Pending() *PendingWrites { return s.pending }

// Board returns the open board
func (s *BoardSession) Board() (entities.Board, bool) {
	boards := s.board.Snapshot()
	if len(boards) == 0 {
		return entities.Board{}, false
	}
	return boards[0], true
}

// IsOwner reports whether the user owns the open board
func (s *BoardSession) IsOwner() bool {
	board, ok := s.Board()
	return ok && board.OwnerID == s.userID
}

// CanEdit reports whether the user may change content on the open board. Locked boards are
// read-only for everyone but the owner.
func (s *BoardSession) CanEdit() bool {
	board, ok := s.Board()
	return ok && (!board.IsLocked || board.OwnerID == s.userID)
}

// CanEditPost reports whether the user may change the content of post
func (s *BoardSession) CanEditPost(post entities.Post) bool {
	return s.CanEdit() && post.AuthorID == s.userID
}

// CanDeletePost reports whether the user may delete post
func (s *BoardSession) CanDeletePost(post entities.Post) bool {
	return s.CanEdit() && (post.AuthorID == s.userID || s.IsOwner())
}

func (s *BoardSession) checkEdit() error {
	board, ok := s.Board()
	if !ok {
		return entities.ErrNoSession
	}
	if board.IsLocked && board.OwnerID != s.userID {
		return entities.ErrBoardLocked
	}
	return nil
}

func (s *BoardSession) checkOwner() (entities.Board, error) {
	board, ok := s.Board()
	if !ok {
		return entities.Board{}, entities.ErrNoSession
	}
	if board.OwnerID != s.userID {
		return entities.Board{}, entities.ErrNotBoardOwner
	}
	return board, nil
}

func (s *BoardSession) editablePost(id string) (entities.Post, error) {
	if err := s.checkEdit(); err != nil {
		return entities.Post{}, err
	}
	post, ok := s.posts.Get(id)
	if !ok {
		return entities.Post{}, fmt.Errorf("post %s: %w", id, entities.ErrPostNotFound)
	}
	return post, nil
}

func (s *BoardSession) authoredPost(id string) (entities.Post, error) {
	post, err := s.editablePost(id)
	if err != nil {
		return post, err
	}
	if post.AuthorID != s.userID {
		return post, entities.ErrNotPostAuthor
	}
	return post, nil
}

// AddPost creates a note on the open board
func (s *BoardSession) AddPost(ctx context.Context, opts ports.AddPostOptions) (entities.Post, error) {
	if err := s.checkEdit(); err != nil {
		return entities.Post{}, err
	}
	if opts.ColumnID != nil && !s.columns.Has(*opts.ColumnID) {
		return entities.Post{}, fmt.Errorf("column %s: %w", *opts.ColumnID, entities.ErrColumnNotFound)
	}
	post, err := s.posts.Add(ctx, s.userID, opts)
	if err == nil {
		s.logger.LogUserAction(s.userID, "add_post", map[string]interface{}{"post_id": post.ID})
	}
	return post, err
}

// EditPost replaces a note's text; only its author may
func (s *BoardSession) EditPost(ctx context.Context, id, content string) error {
	if _, err := s.authoredPost(id); err != nil {
		return err
	}
	return s.posts.UpdatePost(ctx, id, ports.PostPatch{Content: &content})
}

// RecolorPost changes a note's colour; only its author may
func (s *BoardSession) RecolorPost(ctx context.Context, id, color string) error {
	if _, err := s.authoredPost(id); err != nil {
		return err
	}
	return s.posts.UpdatePost(ctx, id, ports.PostPatch{Color: &color})
}

// SetPostLabels replaces a note's labels; only its author may
func (s *BoardSession) SetPostLabels(ctx context.Context, id string, labels []string) error {
	if _, err := s.authoredPost(id); err != nil {
		return err
	}
	if labels == nil {
		labels = []string{}
	}
	return s.posts.UpdatePost(ctx, id, ports.PostPatch{Labels: labels})
}

// DeletePost removes a note; its author and the board owner may
func (s *BoardSession) DeletePost(ctx context.Context, id string) error {
	post, err := s.editablePost(id)
	if err != nil {
		return err
	}
	if post.AuthorID != s.userID && !s.IsOwner() {
		return entities.ErrNotPostAuthor
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.LogUserAction(s.userID, "delete_post", map[string]interface{}{"post_id": id})
	return nil
}

// MovePost finishes a canvas drag of (dx, dy) from the note's pre-drag position
func (s *BoardSession) MovePost(ctx context.Context, id string, dx, dy float64) (Point, error) {
	post, err := s.editablePost(id)
	if err != nil {
		return Point{}, err
	}
	to := DragPosition(Point{X: post.PosX, Y: post.PosY}, dx, dy)
	return to, s.posts.UpdatePost(ctx, id, ports.PostPatch{PosX: &to.X, PosY: &to.Y})
}

// BringToFront raises a grabbed note above every other note touched this session
func (s *BoardSession) BringToFront(ctx context.Context, id string) (int, error) {
	if _, err := s.editablePost(id); err != nil {
		return 0, err
	}
	z := s.z.Next()
	return z, s.posts.UpdatePost(ctx, id, ports.PostPatch{ZIndex: &z})
}

// ToggleReaction flips the user's emoji on a note
func (s *BoardSession) ToggleReaction(ctx context.Context, postID, emoji string) (bool, error) {
	if _, err := s.editablePost(postID); err != nil {
		return false, err
	}
	return s.reactions.Toggle(ctx, postID, emoji, s.userID)
}

// DragStart begins a Kanban card drag
func (s *BoardSession) DragStart(postID string) error {
	if _, err := s.editablePost(postID); err != nil {
		return err
	}
	return s.drag.Start(postID)
}

// DragOver previews the dragged card over a lane or card
func (s *BoardSession) DragOver(overID string) error {
	return s.drag.Over(overID)
}

// DragDrop persists the Kanban drag
func (s *BoardSession) DragDrop(ctx context.Context, overID string) ([]PositionWrite, error) {
	return s.drag.Drop(ctx, overID)
}

// DragCancel abandons the Kanban drag
func (s *BoardSession) DragCancel() {
	s.drag.Cancel()
}

// AddColumn appends a Kanban column; owner only
func (s *BoardSession) AddColumn(ctx context.Context, title, color string) (entities.Column, error) {
	if _, err := s.checkOwner(); err != nil {
		return entities.Column{}, err
	}
	return s.columns.Add(ctx, title, color)
}

// UpdateColumn renames or recolours a column; owner only
func (s *BoardSession) UpdateColumn(ctx context.Context, id string, patch ports.ColumnPatch) error {
	if _, err := s.checkOwner(); err != nil {
		return err
	}
	return s.columns.UpdateColumn(ctx, id, patch)
}

// MoveColumn reorders a column; owner only
func (s *BoardSession) MoveColumn(ctx context.Context, id string, index int) error {
	if _, err := s.checkOwner(); err != nil {
		return err
	}
	return s.columns.Move(ctx, id, index)
}

// DeleteColumn removes a column; its notes fall back to the unassigned lane
func (s *BoardSession) DeleteColumn(ctx context.Context, id string) error {
	if _, err := s.checkOwner(); err != nil {
		return err
	}
	if err := s.columns.Delete(ctx, id); err != nil {
		return err
	}
	for _, p := range s.posts.InColumn(&id) {
		s.posts.SetLocal(p.ID, ports.Fields{"column_id": nil})
	}
	return nil
}

// UpdateBoard changes board settings; owner only
func (s *BoardSession) UpdateBoard(ctx context.Context, patch ports.BoardPatch) error {
	board, err := s.checkOwner()
	if err != nil {
		return err
	}
	if err := s.board.UpdateBoard(ctx, board.ID, patch); err != nil {
		return err
	}
	s.logger.LogUserAction(s.userID, "update_board", map[string]interface{}{"board_id": board.ID})
	return nil
}

// SetViewMode switches between canvas, kanban and grid
func (s *BoardSession) SetViewMode(ctx context.Context, mode entities.ViewMode) error {
	return s.UpdateBoard(ctx, ports.BoardPatch{ViewMode: &mode})
}

// SetLocked locks or unlocks the board for non-owners
func (s *BoardSession) SetLocked(ctx context.Context, locked bool) error {
	return s.UpdateBoard(ctx, ports.BoardPatch{IsLocked: &locked})
}

// SetPublic toggles public visibility
func (s *BoardSession) SetPublic(ctx context.Context, public bool) error {
	return s.UpdateBoard(ctx, ports.BoardPatch{IsPublic: &public})
}

// OpenComments loads the thread of a note
func (s *BoardSession) OpenComments(ctx context.Context, postID string) error {
	if _, ok := s.posts.Get(postID); !ok {
		return fmt.Errorf("post %s: %w", postID, entities.ErrPostNotFound)
	}
	return s.comments.Fetch(ctx, postID)
}

// CloseComments clears the open thread
func (s *BoardSession) CloseComments(ctx context.Context) {
	s.comments.Fetch(ctx, "")
}

// AddComment appends to the open thread
func (s *BoardSession) AddComment(ctx context.Context, content string) (entities.Comment, error) {
	if err := s.checkEdit(); err != nil {
		return entities.Comment{}, err
	}
	return s.comments.Add(ctx, s.userID, content, s.Author(s.userID))
}

// DeleteComment removes a comment; only its author may
func (s *BoardSession) DeleteComment(ctx context.Context, id string) error {
	if err := s.checkEdit(); err != nil {
		return err
	}
	comment, ok := s.comments.Get(id)
	if !ok {
		return fmt.Errorf("comment %s: %w", id, entities.ErrNotFound)
	}
	if comment.AuthorID != s.userID {
		return entities.ErrNotCommentAuthor
	}
	return s.comments.Delete(ctx, id)
}

func (s *BoardSession) decorate(post entities.Post) PostCard {
	card := PostCard{
		Post:       post,
		AuthorName: s.AuthorName(post.AuthorID),
		Labels:     []entities.LabelOption{},
		Reactions:  SummarizeReactions(s.reactions.ForPost(post.ID), s.userID),
		Pending:    IsTempID(post.ID),
		CanEdit:    s.CanEditPost(post),
		CanDelete:  s.CanDeletePost(post),
	}
	for _, label := range post.Labels {
		if opt, ok := entities.FindLabelOption(label); ok {
			card.Labels = append(card.Labels, opt)
		}
	}
	return card
}

// CanvasView renders the notes in paint order
func (s *BoardSession) CanvasView() CanvasView {
	return BuildCanvasView(s.posts.Snapshot(), s.decorate)
}

// KanbanView renders the notes bucketed into lanes
func (s *BoardSession) KanbanView() KanbanView {
	return BuildKanbanView(s.columns.Snapshot(), s.posts.Snapshot(), s.decorate)
}

// GridView renders the notes in store order
func (s *BoardSession) GridView() GridView {
	return BuildGridView(s.posts.Snapshot(), s.decorate)
}

// IsPermissionError reports whether err is a permission refusal rather than a remote failure
func IsPermissionError(err error) bool {
	return errors.Is(err, entities.ErrBoardLocked) ||
		errors.Is(err, entities.ErrNotBoardOwner) ||
		errors.Is(err, entities.ErrNotPostAuthor) ||
		errors.Is(err, entities.ErrNotCommentAuthor) ||
		errors.Is(err, entities.ErrForbidden)
}
