package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/classboard/core/internal/infrastructure/config"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/infrastructure/metrics"
	"github.com/classboard/core/internal/ports"
)

// RealtimeHandler streams board changes over a websocket
type RealtimeHandler struct {
	storage  ports.Storage
	feed     ports.ChangeFeed
	cfg      config.RealtimeConfig
	metrics  *metrics.Metrics
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new realtime handler. m may be nil.
func NewRealtimeHandler(storage ports.Storage, feed ports.ChangeFeed, cfg config.RealtimeConfig, m *metrics.Metrics, log *logger.Logger) *RealtimeHandler {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.ReadTimeout <= cfg.PingInterval {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &RealtimeHandler{
		storage: storage,
		feed:    feed,
		cfg:     cfg,
		metrics: m,
		logger:  log.WithComponent("realtime_handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS layer and the bearer token
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Subscribe handles GET /realtime?board_id=<id>
// @Summary Subscribe to board changes
// @Description Upgrades to a websocket that carries one JSON Change per frame.
// @Tags realtime
// @Param board_id query string true "Board id"
// @Param access_token query string false "Bearer token for browsers"
// @Success 101
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Security BearerAuth
// @Router /api/v1/realtime [get]
func (h *RealtimeHandler) Subscribe(c echo.Context) error {
	boardID := c.QueryParam("board_id")
	if boardID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "board_id is required")
	}

	userID := getUserIDFromContext(c)
	a := newAccess(h.storage, userID)
	board, err := a.board(c.Request().Context(), boardID)
	if err != nil {
		return toHTTPError(err)
	}
	if !a.canRead(board) {
		return echo.NewHTTPError(http.StatusNotFound, "board not found")
	}

	// the feed outlives the request context once the connection is hijacked
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()

	changes, err := h.feed.Subscribe(ctx, ports.Subscription{BoardID: boardID})
	if err != nil {
		return toHTTPError(err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return nil
	}
	defer ws.Close()

	log := h.logger.WithBoardID(boardID).WithUserID(userID)
	log.Info("Realtime subscriber connected")
	if h.metrics != nil {
		h.metrics.FeedConnections.Inc()
		defer h.metrics.FeedConnections.Dec()
	}

	go h.readLoop(ws, cancel)
	h.writeLoop(ctx, ws, changes, log)

	log.Info("Realtime subscriber disconnected")
	return nil
}

// readLoop drains client frames so pongs and close frames are processed
func (h *RealtimeHandler) readLoop(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
}

func (h *RealtimeHandler) writeLoop(ctx context.Context, ws *websocket.Conn, changes <-chan ports.Change, log *logger.Logger) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case change, ok := <-changes:
			if !ok {
				// feed dropped us; closing lets the client resubscribe and refetch
				ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "feed dropped"))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteJSON(change); err != nil {
				log.WithError(err).Debug("Realtime write failed")
				return
			}
			if h.metrics != nil {
				h.metrics.ChangesSent.WithLabelValues(string(change.Table), string(change.Event)).Inc()
			}
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
