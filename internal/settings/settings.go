// Package settings serves the platform quota settings to the rest of the
// process through an explicit, invalidatable cache.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository"
)

// DefaultTTL is how long a fetched value is served before the store is read again.
const DefaultTTL = time.Minute

// Provider supplies the current platform settings.
type Provider interface {
	Get(ctx context.Context) (domain.Settings, error)
}

// Store is the persistence the cache reads through.
type Store interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
}

// Static is a Provider that always returns the same value.
type Static domain.Settings

func (s Static) Get(ctx context.Context) (domain.Settings, error) {
	return domain.Settings(s), nil
}

// Cache holds the last fetched settings together with the fetch time.
// A zero fetchedAt means nothing is cached.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	value     domain.Settings
	fetchedAt time.Time
}

var _ Provider = (*Cache)(nil)

// NewCache creates a cache over store. A non-positive ttl uses DefaultTTL.
func NewCache(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached settings, refreshing from the store once the TTL
// has passed. Missing settings fall back to domain.DefaultSettings. If a
// refresh fails and a previous value exists, the stale value is served.
func (c *Cache) Get(ctx context.Context) (domain.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	value, err := c.store.GetSettings(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		value = domain.DefaultSettings()
	case err != nil:
		if !c.fetchedAt.IsZero() {
			c.logger.Warn("settings refresh failed, serving stale value", "error", err)
			return c.value, nil
		}
		return domain.Settings{}, domain.Wrap(err, domain.EINTERNAL, "Settings.Get", "failed to load settings")
	}

	c.value = value
	c.fetchedAt = now
	return value, nil
}

// Invalidate drops the cached value so the next Get reads the store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
