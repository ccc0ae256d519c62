package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// endpoint serves the REST surface of one table for an authenticated caller
type endpoint interface {
	list(c echo.Context, a *access, q ports.Query) error
	create(c echo.Context, a *access) error
	update(c echo.Context, a *access, id string, fields ports.Fields) error
	remove(c echo.Context, a *access, id string) error
}

// TableHandler exposes the store of record as /api/v1/:table
type TableHandler struct {
	storage   ports.Storage
	endpoints map[ports.Table]endpoint
	logger    *logger.Logger
}

// NewTableHandler creates a new table handler
func NewTableHandler(storage ports.Storage, log *logger.Logger) *TableHandler {
	if log == nil {
		log = logger.NewNop()
	}
	h := &TableHandler{storage: storage, logger: log.WithComponent("table_handler")}
	h.endpoints = map[ports.Table]endpoint{
		ports.TableBoards:    boardsEndpoint(storage),
		ports.TableColumns:   columnsEndpoint(storage),
		ports.TablePosts:     postsEndpoint(storage),
		ports.TableReactions: reactionsEndpoint(storage),
		ports.TableComments:  commentsEndpoint(storage),
		ports.TableProfiles:  &profilesEndpoint{repo: storage.Profiles()},
	}
	return h
}

func (h *TableHandler) resolve(c echo.Context) (endpoint, *access, error) {
	table, err := ports.ParseTable(c.Param("table"))
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "Unknown table")
	}
	userID := getUserIDFromContext(c)
	if userID == "" {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "Missing user")
	}
	return h.endpoints[table], newAccess(h.storage, userID), nil
}

// List handles GET /:table
// @Summary List rows
// @Description Equality filters are passed as query parameters; order=<column>[.desc] sorts.
// @Tags tables
// @Produce json
// @Param table path string true "Table name"
// @Param order query string false "Sort key"
// @Success 200 {array} object
// @Failure 400 {object} MessageResponse
// @Security BearerAuth
// @Router /api/v1/{table} [get]
func (h *TableHandler) List(c echo.Context) error {
	ep, a, err := h.resolve(c)
	if err != nil {
		return err
	}
	q := parseQuery(c)
	if err := ports.CheckQuery(ports.Table(c.Param("table")), q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.fail(c, ep.list(c, a, q))
}

// Create handles POST /:table
// @Summary Insert a row
// @Tags tables
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Success 201 {object} object
// @Failure 400 {object} MessageResponse
// @Failure 403 {object} MessageResponse
// @Security BearerAuth
// @Router /api/v1/{table} [post]
func (h *TableHandler) Create(c echo.Context) error {
	ep, a, err := h.resolve(c)
	if err != nil {
		return err
	}
	return h.fail(c, ep.create(c, a))
}

// Update handles PATCH /:table/:id
// @Summary Update columns of a row
// @Tags tables
// @Accept json
// @Param table path string true "Table name"
// @Param id path string true "Row id"
// @Success 204
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Security BearerAuth
// @Router /api/v1/{table}/{id} [patch]
func (h *TableHandler) Update(c echo.Context) error {
	ep, a, err := h.resolve(c)
	if err != nil {
		return err
	}

	var fields ports.Fields
	decoder := json.NewDecoder(c.Request().Body)
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if len(fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No fields to update")
	}
	return h.fail(c, ep.update(c, a, c.Param("id"), fields))
}

// Delete handles DELETE /:table/:id
// @Summary Delete a row
// @Tags tables
// @Param table path string true "Table name"
// @Param id path string true "Row id"
// @Success 204
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Security BearerAuth
// @Router /api/v1/{table}/{id} [delete]
func (h *TableHandler) Delete(c echo.Context) error {
	ep, a, err := h.resolve(c)
	if err != nil {
		return err
	}
	return h.fail(c, ep.remove(c, a, c.Param("id")))
}

func (h *TableHandler) fail(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	httpErr := toHTTPError(err)
	if httpErr.Code == http.StatusForbidden {
		h.logger.LogSecurityEvent("row_policy_denied", getUserIDFromContext(c), c.RealIP(), map[string]interface{}{
			"method":   c.Request().Method,
			"endpoint": c.Request().URL.Path,
			"reason":   err.Error(),
		})
	} else if httpErr.Code >= http.StatusInternalServerError {
		h.logger.WithError(err).Errorw("Table request failed", "path", c.Request().URL.Path)
	}
	return httpErr
}

func parseQuery(c echo.Context) ports.Query {
	q := ports.Query{}
	for key, values := range c.QueryParams() {
		if len(values) == 0 {
			continue
		}
		switch key {
		case "order":
			for _, v := range values {
				column, direction, _ := strings.Cut(v, ".")
				q = q.OrderBy(column, direction == "desc")
			}
		case accessTokenParam:
		default:
			q = q.Where(key, values[0])
		}
	}
	return q
}

// tableEndpoint implements endpoint for one entity type. The hooks bind the row policies.
type tableEndpoint[T any] struct {
	table ports.Table
	repo  ports.Repository[T]
	board func(ctx context.Context, a *access, row T) (*entities.Board, error)
	// prepare stamps the caller onto a new row and checks it may be written
	prepare     func(ctx context.Context, a *access, row *T) error
	checkUpdate func(a *access, row T, board *entities.Board, fields ports.Fields) error
	checkDelete func(a *access, row T, board *entities.Board) error
}

func (e *tableEndpoint[T]) list(c echo.Context, a *access, q ports.Query) error {
	ctx := c.Request().Context()
	rows, err := e.repo.Select(ctx, q)
	if err != nil {
		return err
	}

	visible := make([]T, 0, len(rows))
	for _, row := range rows {
		if a.readable(e.board(ctx, a, row)) {
			visible = append(visible, row)
		}
	}
	return c.JSON(http.StatusOK, visible)
}

func (e *tableEndpoint[T]) create(c echo.Context, a *access) error {
	ctx := c.Request().Context()

	var row T
	if err := c.Bind(&row); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := e.prepare(ctx, a, &row); err != nil {
		return err
	}
	if err := entities.Validate(row); err != nil {
		return err
	}

	created, err := e.repo.Insert(ctx, row)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (e *tableEndpoint[T]) find(ctx context.Context, a *access, id string) (T, *entities.Board, error) {
	rows, err := e.repo.Select(ctx, ports.Query{}.Where("id", id))
	if err != nil {
		var zero T
		return zero, nil, err
	}
	if len(rows) == 0 {
		var zero T
		return zero, nil, entities.ErrNotFound
	}
	board, err := e.board(ctx, a, rows[0])
	if err != nil {
		return rows[0], nil, err
	}
	if !a.canRead(board) {
		// private rows of other users look absent
		return rows[0], nil, entities.ErrNotFound
	}
	return rows[0], board, nil
}

func (e *tableEndpoint[T]) update(c echo.Context, a *access, id string, fields ports.Fields) error {
	ctx := c.Request().Context()
	if e.checkUpdate == nil {
		return echo.NewHTTPError(http.StatusMethodNotAllowed, "Rows of this table are immutable")
	}
	if _, err := ports.NormalizeFields(e.table, fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	row, board, err := e.find(ctx, a, id)
	if err != nil {
		return err
	}
	if err := e.checkUpdate(a, row, board, fields); err != nil {
		return err
	}
	if err := e.repo.Update(ctx, id, fields); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (e *tableEndpoint[T]) remove(c echo.Context, a *access, id string) error {
	ctx := c.Request().Context()
	row, board, err := e.find(ctx, a, id)
	if err != nil {
		return err
	}
	if err := e.checkDelete(a, row, board); err != nil {
		return err
	}
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func boardsEndpoint(storage ports.Storage) endpoint {
	return &tableEndpoint[entities.Board]{
		table: ports.TableBoards,
		repo: storage.Boards(),
		board: func(_ context.Context, _ *access, b entities.Board) (*entities.Board, error) {
			return &b, nil
		},
		prepare: func(_ context.Context, a *access, b *entities.Board) error {
			b.OwnerID = a.userID
			if b.BackgroundColor == "" {
				b.BackgroundColor = entities.DefaultBoardBackground
			}
			if b.ViewMode == "" {
				b.ViewMode = entities.ViewModeCanvas
			}
			return nil
		},
		checkUpdate: func(a *access, _ entities.Board, board *entities.Board, _ ports.Fields) error {
			return a.requireOwner(board)
		},
		checkDelete: func(a *access, _ entities.Board, board *entities.Board) error {
			return a.requireOwner(board)
		},
	}
}

func columnsEndpoint(storage ports.Storage) endpoint {
	return &tableEndpoint[entities.Column]{
		table: ports.TableColumns,
		repo: storage.Columns(),
		board: func(ctx context.Context, a *access, col entities.Column) (*entities.Board, error) {
			return a.board(ctx, col.BoardID)
		},
		prepare: func(ctx context.Context, a *access, col *entities.Column) error {
			board, err := a.board(ctx, col.BoardID)
			if err != nil {
				return err
			}
			return a.requireOwner(board)
		},
		checkUpdate: func(a *access, _ entities.Column, board *entities.Board, _ ports.Fields) error {
			return a.requireOwner(board)
		},
		checkDelete: func(a *access, _ entities.Column, board *entities.Board) error {
			return a.requireOwner(board)
		},
	}
}

func postsEndpoint(storage ports.Storage) endpoint {
	return &tableEndpoint[entities.Post]{
		table: ports.TablePosts,
		repo: storage.Posts(),
		board: func(ctx context.Context, a *access, p entities.Post) (*entities.Board, error) {
			return a.board(ctx, p.BoardID)
		},
		prepare: func(ctx context.Context, a *access, p *entities.Post) error {
			p.AuthorID = a.userID
			if p.Labels == nil {
				p.Labels = []string{}
			}
			board, err := a.board(ctx, p.BoardID)
			if err != nil {
				return err
			}
			return a.canWrite(board)
		},
		checkUpdate: func(a *access, p entities.Post, board *entities.Board, fields ports.Fields) error {
			if err := validateLabels(fields); err != nil {
				return err
			}
			return a.checkPostUpdate(&p, board, fields)
		},
		checkDelete: func(a *access, p entities.Post, board *entities.Board) error {
			if err := a.canWrite(board); err != nil {
				return err
			}
			if p.AuthorID != a.userID && !a.owns(board) {
				return entities.ErrNotPostAuthor
			}
			return nil
		},
	}
}

func reactionsEndpoint(storage ports.Storage) endpoint {
	return &tableEndpoint[entities.Reaction]{
		table: ports.TableReactions,
		repo: storage.Reactions(),
		board: func(ctx context.Context, a *access, r entities.Reaction) (*entities.Board, error) {
			return a.postBoard(ctx, r.PostID)
		},
		prepare: func(ctx context.Context, a *access, r *entities.Reaction) error {
			r.UserID = a.userID
			board, err := a.postBoard(ctx, r.PostID)
			if err != nil {
				return err
			}
			return a.canWrite(board)
		},
		checkDelete: func(a *access, r entities.Reaction, board *entities.Board) error {
			if err := a.canWrite(board); err != nil {
				return err
			}
			if r.UserID != a.userID {
				return entities.ErrForbidden
			}
			return nil
		},
	}
}

func commentsEndpoint(storage ports.Storage) endpoint {
	return &tableEndpoint[entities.Comment]{
		table: ports.TableComments,
		repo: storage.Comments(),
		board: func(ctx context.Context, a *access, cm entities.Comment) (*entities.Board, error) {
			return a.postBoard(ctx, cm.PostID)
		},
		prepare: func(ctx context.Context, a *access, cm *entities.Comment) error {
			cm.AuthorID = a.userID
			cm.Author = nil
			cm.Content = strings.TrimSpace(cm.Content)
			board, err := a.postBoard(ctx, cm.PostID)
			if err != nil {
				return err
			}
			return a.canWrite(board)
		},
		checkDelete: func(a *access, cm entities.Comment, board *entities.Board) error {
			if err := a.canWrite(board); err != nil {
				return err
			}
			if cm.AuthorID != a.userID {
				return entities.ErrNotCommentAuthor
			}
			return nil
		},
	}
}

func validateLabels(fields ports.Fields) error {
	raw, ok := fields["labels"]
	if !ok {
		return nil
	}
	normalized, err := ports.NormalizeFields(ports.TablePosts, ports.Fields{"labels": raw})
	if err != nil {
		return err
	}
	for _, label := range normalized["labels"].([]string) {
		if _, ok := entities.FindLabelOption(label); !ok {
			return fmt.Errorf("%q: %w", label, entities.ErrInvalidLabel)
		}
	}
	return nil
}

// profilesEndpoint reads any profile by id and lets callers upsert their own
type profilesEndpoint struct {
	repo ports.ProfileRepository
}

func (e *profilesEndpoint) list(c echo.Context, _ *access, q ports.Query) error {
	id, ok := q.Filter["id"]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Profiles are listed by id")
	}
	profiles, err := e.repo.GetByIDs(c.Request().Context(), strings.Split(id, ","))
	if err != nil {
		return err
	}
	if profiles == nil {
		profiles = []entities.Profile{}
	}
	return c.JSON(http.StatusOK, profiles)
}

func (e *profilesEndpoint) create(c echo.Context, a *access) error {
	var profile entities.Profile
	if err := c.Bind(&profile); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	profile.ID = a.userID
	if err := e.repo.Upsert(c.Request().Context(), profile); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, profile)
}

func (e *profilesEndpoint) update(echo.Context, *access, string, ports.Fields) error {
	return echo.NewHTTPError(http.StatusMethodNotAllowed, "Profiles are written with POST")
}

func (e *profilesEndpoint) remove(echo.Context, *access, string) error {
	return echo.NewHTTPError(http.StatusMethodNotAllowed, "Profiles cannot be deleted")
}

// RegisterRoutes mounts the table and realtime endpoints on an authenticated group
func RegisterRoutes(api *echo.Group, tables *TableHandler, feed *RealtimeHandler) {
	api.GET("/realtime", feed.Subscribe)
	api.GET("/:table", tables.List)
	api.POST("/:table", tables.Create)
	api.PATCH("/:table/:id", tables.Update)
	api.DELETE("/:table/:id", tables.Delete)
}
