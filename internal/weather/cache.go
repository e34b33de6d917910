package weather

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GridCache stores resolved grid references by coordinate. Grid geometry does
// not change, so entries never expire.
type GridCache interface {
	Get(ctx context.Context, lat, lon float64) (GridReference, bool)
	Put(ctx context.Context, lat, lon float64, ref GridReference)
}

func gridKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
}

// MemoryCache is an in-process GridCache with no eviction.
type MemoryCache struct {
	mu    sync.RWMutex
	grids map[string]GridReference
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{grids: make(map[string]GridReference)}
}

func (c *MemoryCache) Get(_ context.Context, lat, lon float64) (GridReference, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ref, ok := c.grids[gridKey(lat, lon)]
	return ref, ok
}

func (c *MemoryCache) Put(_ context.Context, lat, lon float64, ref GridReference) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.grids[gridKey(lat, lon)] = ref
}

// Len returns the number of cached grid references.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.grids)
}

// RedisCache shares grid references between processes through Redis. Redis
// failures degrade to cache misses; the provider is then asked again.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "tempedge:grid:"}
}

func (c *RedisCache) Get(ctx context.Context, lat, lon float64) (GridReference, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+gridKey(lat, lon)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("grid cache read failed", "error", err)
		}
		return GridReference{}, false
	}

	var ref GridReference
	if err := json.Unmarshal(data, &ref); err != nil {
		slog.Warn("grid cache entry corrupt", "key", gridKey(lat, lon), "error", err)
		return GridReference{}, false
	}
	return ref, true
}

func (c *RedisCache) Put(ctx context.Context, lat, lon float64, ref GridReference) {
	data, err := json.Marshal(ref)
	if err != nil {
		return
	}
	// Zero expiration: grid cells are stable.
	if err := c.rdb.Set(ctx, c.prefix+gridKey(lat, lon), data, 0).Err(); err != nil {
		slog.Warn("grid cache write failed", "error", err)
	}
}
