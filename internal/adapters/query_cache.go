package adapters

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"noir-registry/internal/ports"
	"noir-registry/internal/types"
)

const (
	DefaultQueryCacheTTL     = 5 * time.Minute
	defaultQueryCacheCleanup = 10 * time.Minute
)

// QueryCacheAdapter memoizes list and search results in process memory.
type QueryCacheAdapter struct {
	cache *gocache.Cache
}

func NewQueryCacheAdapter(ttl time.Duration) *QueryCacheAdapter {
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	return &QueryCacheAdapter{cache: gocache.New(ttl, defaultQueryCacheCleanup)}
}

func (c *QueryCacheAdapter) Get(ctx context.Context, key string) ([]types.Package, bool) {
	value, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	packages, ok := value.([]types.Package)
	if !ok {
		log.Ctx(ctx).Error().Str("key", key).Msg("unexpected value type in query cache")
		c.cache.Delete(key)
		return nil, false
	}
	log.Ctx(ctx).Debug().Str("key", key).Msg("query cache hit")
	return packages, true
}

func (c *QueryCacheAdapter) Set(_ context.Context, key string, value []types.Package) {
	c.cache.Set(key, value, gocache.DefaultExpiration)
}

func (c *QueryCacheAdapter) Flush(ctx context.Context) {
	c.cache.Flush()
	log.Ctx(ctx).Debug().Msg("query cache flushed")
}

var _ ports.QueryCachePort = (*QueryCacheAdapter)(nil)
