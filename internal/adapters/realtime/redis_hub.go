package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

const channelPrefix = "classboard:board:"

// RedisHub relays changes over Redis pub/sub so every gateway instance sees writes made
// through any other.
type RedisHub struct {
	client *redis.Client
	buffer int
	log    *logger.Logger
}

// NewRedisHub creates a hub on an existing client
func NewRedisHub(client *redis.Client, buffer int, log *logger.Logger) *RedisHub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisHub{client: client, buffer: buffer, log: log.WithComponent("redis_hub")}
}

// BoardChannel names the pub/sub channel of a board
func BoardChannel(boardID string) string {
	return channelPrefix + boardID
}

// Publish sends change on its board channel
func (h *RedisHub) Publish(ctx context.Context, change ports.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := h.client.Publish(ctx, BoardChannel(change.BoardID), payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for one board. The channel closes when ctx is done or
// the Redis connection is lost.
func (h *RedisHub) Subscribe(ctx context.Context, sub ports.Subscription) (<-chan ports.Change, error) {
	pubsub := h.client.Subscribe(ctx, BoardChannel(sub.BoardID))

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe board %s: %w", sub.BoardID, err)
	}

	out := make(chan ports.Change, h.buffer)
	log := h.log.WithBoardID(sub.BoardID)

	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change ports.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.WithError(err).Warn("Discarding malformed change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
