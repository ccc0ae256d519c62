package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classboard/core/internal/infrastructure/config"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// Feed implements ports.ChangeFeed over the gateway websocket
type Feed struct {
	client *Client
	cfg    config.RealtimeConfig
	dialer *websocket.Dialer
	logger *logger.Logger
}

// NewFeed creates a change feed. Zero timeouts fall back to the gateway defaults.
func NewFeed(client *Client, cfg config.RealtimeConfig) *Feed {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.ReadTimeout <= cfg.PingInterval {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &Feed{
		client: client,
		cfg:    cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: client.http.Timeout,
		},
		logger: client.logger.WithComponent("change_feed"),
	}
}

func (f *Feed) socketURL(boardID string) string {
	u := *f.client.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = u.Path + apiPrefix + "realtime"
	u.RawQuery = url.Values{"board_id": {boardID}}.Encode()
	return u.String()
}

// Subscribe dials the gateway and forwards changes until ctx is done or the socket drops
func (f *Feed) Subscribe(ctx context.Context, sub ports.Subscription) (<-chan ports.Change, error) {
	header := http.Header{}
	if f.client.token != "" {
		header.Set("Authorization", "Bearer "+f.client.token)
	}

	ws, resp, err := f.dialer.DialContext(ctx, f.socketURL(sub.BoardID), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("subscribe board %s: %w", sub.BoardID, &StatusError{Code: resp.StatusCode, Message: resp.Status})
		}
		return nil, fmt.Errorf("subscribe board %s: %w", sub.BoardID, err)
	}

	log := f.logger.WithBoardID(sub.BoardID)
	out := make(chan ports.Change, f.cfg.BufferSize)
	done := make(chan struct{})

	ws.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(f.cfg.WriteTimeout))
	})

	go func() {
		select {
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(f.cfg.WriteTimeout))
			ws.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer ws.Close()

		for {
			var change ports.Change
			if err := ws.ReadJSON(&change); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Info("Change feed closed")
				}
				return
			}
			ws.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
