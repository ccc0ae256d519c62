package cache

import (
	"context"
	"errors"
	"time"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

// CachedProfiles is a read-through cache in front of a profile repository. Cache failures
// fall back to the repository.
type CachedProfiles struct {
	inner ports.ProfileRepository
	cache ports.CacheRepository
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedProfiles wraps inner
func NewCachedProfiles(inner ports.ProfileRepository, cache ports.CacheRepository, ttl time.Duration, log *logger.Logger) *CachedProfiles {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedProfiles{inner: inner, cache: cache, ttl: ttl, log: log.WithComponent("profile_cache")}
}

func profileKey(id string) string {
	return "profile:" + id
}

func (c *CachedProfiles) GetByIDs(ctx context.Context, ids []string) ([]entities.Profile, error) {
	found := make(map[string]entities.Profile, len(ids))
	var missing []string

	for _, id := range ids {
		var profile entities.Profile
		err := c.cache.Get(ctx, profileKey(id), &profile)
		switch {
		case err == nil:
			found[id] = profile
		case errors.Is(err, ports.ErrCacheMiss):
			missing = append(missing, id)
		default:
			c.log.WithError(err).Debugw("Profile cache read failed", "id", id)
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		loaded, err := c.inner.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, profile := range loaded {
			found[profile.ID] = profile
			if err := c.cache.Set(ctx, profileKey(profile.ID), profile, c.ttl); err != nil {
				c.log.WithError(err).Debugw("Profile cache write failed", "id", profile.ID)
			}
		}
	}

	out := make([]entities.Profile, 0, len(found))
	for _, id := range ids {
		if profile, ok := found[id]; ok {
			out = append(out, profile)
		}
	}
	return out, nil
}

func (c *CachedProfiles) Upsert(ctx context.Context, profile entities.Profile) error {
	if err := c.inner.Upsert(ctx, profile); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, profileKey(profile.ID)); err != nil {
		c.log.WithError(err).Debugw("Profile cache invalidation failed", "id", profile.ID)
	}
	return nil
}

// ProfileCachingStorage swaps the profile repository of a storage for a cached one
type ProfileCachingStorage struct {
	ports.Storage
	profiles *CachedProfiles
}

// WithProfileCache decorates storage
func WithProfileCache(storage ports.Storage, cache ports.CacheRepository, ttl time.Duration, log *logger.Logger) *ProfileCachingStorage {
	return &ProfileCachingStorage{
		Storage:  storage,
		profiles: NewCachedProfiles(storage.Profiles(), cache, ttl, log),
	}
}

func (s *ProfileCachingStorage) Profiles() ports.ProfileRepository {
	return s.profiles
}
