package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/classboard/core/internal/adapters/memory"
	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

type mapCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string][]byte)}
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return errors.New("connection refused")
	}
	raw, ok := c.values[key]
	if !ok {
		return ports.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type countingProfiles struct {
	ports.ProfileRepository
	calls [][]string
}

func (c *countingProfiles) GetByIDs(ctx context.Context, ids []string) ([]entities.Profile, error) {
	c.calls = append(c.calls, ids)
	return c.ProfileRepository.GetByIDs(ctx, ids)
}

func TestCachedProfilesReadThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	store.Profiles().Upsert(ctx, entities.Profile{ID: "u1", Email: "ana@school.test"})
	store.Profiles().Upsert(ctx, entities.Profile{ID: "u2", Email: "ben@school.test"})
	inner := &countingProfiles{ProfileRepository: store.Profiles()}
	cached := NewCachedProfiles(inner, newMapCache(), time.Minute, nil)

	first, err := cached.GetByIDs(ctx, []string{"u1", "u2"})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(first), 2)

	second, err := cached.GetByIDs(ctx, []string{"u2", "u1", "u3"})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(second), 2)
	assert.Equal(t, second[0].ID, "u2")
	assert.Equal(t, second[1].ID, "u1")

	assert.Equal(t, len(inner.calls), 2)
	assert.Equal(t, inner.calls[1], []string{"u3"})
}

func TestCachedProfilesUpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	cache := newMapCache()
	cached := NewCachedProfiles(store.Profiles(), cache, time.Minute, nil)
	cached.Upsert(ctx, entities.Profile{ID: "u1", Email: "ana@school.test"})
	cached.GetByIDs(ctx, []string{"u1"})

	name := "Ana"
	assert.Equal(t, cached.Upsert(ctx, entities.Profile{ID: "u1", Email: "ana@school.test", DisplayName: &name}), nil)

	profiles, _ := cached.GetByIDs(ctx, []string{"u1"})
	assert.Equal(t, profiles[0].Name(), "Ana")
}

func TestCachedProfilesFallBackOnCacheErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	store.Profiles().Upsert(ctx, entities.Profile{ID: "u1", Email: "ana@school.test"})
	cache := newMapCache()
	cache.failGet = true

	profiles, err := WithProfileCache(store, cache, time.Minute, nil).Profiles().GetByIDs(ctx, []string{"u1"})

	assert.Equal(t, err, nil)
	assert.Equal(t, profiles[0].Name(), "ana")
}
