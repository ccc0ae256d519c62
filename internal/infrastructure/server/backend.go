package server

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/classboard/core/internal/adapters/cache"
	"github.com/classboard/core/internal/adapters/memory"
	"github.com/classboard/core/internal/adapters/realtime"
	"github.com/classboard/core/internal/adapters/repository"
	"github.com/classboard/core/internal/infrastructure/config"
	"github.com/classboard/core/internal/infrastructure/database"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// broker fans confirmed writes out to feed subscribers
type broker interface {
	ports.Publisher
	ports.ChangeFeed
}

// Backend is the store of record plus the change broker behind the gateway
type Backend struct {
	Storage ports.Storage
	Feed    ports.ChangeFeed

	db    *database.DB
	redis *redis.Client
}

// OpenBackend connects the configured store of record, the optional Redis profile cache and the
// change broker. Every confirmed write through Storage is published on Feed.
func OpenBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Backend, error) {
	b := &Backend{}

	var storage ports.Storage
	switch cfg.Storage.Backend {
	case BackendMemory:
		log.Warn("Using in-memory storage; data is lost on restart")
		storage = memory.NewStorage()
	case BackendPostgres, "":
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.db = db
		storage = repository.NewStorage(db.DB)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Redis.Enabled() {
		client, err := cache.Connect(ctx, cfg.Redis, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = client
		storage = cache.WithProfileCache(storage, cache.NewRedisCache(client, "classboard:"), cfg.Redis.ProfileTTL, log)
	}

	var hub broker
	if b.redis != nil && cfg.Redis.Broadcast {
		log.Info("Broadcasting changes over Redis pub/sub")
		hub = realtime.NewRedisHub(b.redis, cfg.Realtime.BufferSize, log)
	} else {
		hub = realtime.NewHub(cfg.Realtime.BufferSize, log)
	}

	b.Storage = realtime.NewPublishingStorage(storage, hub, log)
	b.Feed = hub
	return b, nil
}

// Migrate applies pending schema migrations. The memory backend has no schema.
func (b *Backend) Migrate() error {
	if b.db == nil {
		return nil
	}
	return b.db.MigrateUp()
}

// Ping reports whether the external dependencies answer
func (b *Backend) Ping(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Details describes the backend for the detailed health check
func (b *Backend) Details() map[string]interface{} {
	details := map[string]interface{}{"redis": b.redis != nil}
	if b.db != nil {
		details["database"] = b.db.GetConnectionInfo()
	} else {
		details["database"] = BackendMemory
	}
	return details
}

// Close releases connections
func (b *Backend) Close() error {
	var firstErr error
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
