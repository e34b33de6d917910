package weather

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ref := GridReference{Office: "OKX", GridX: 37, GridY: 39, HourlyURL: "u"}

	if _, ok := c.Get(context.Background(), 40.7794, -73.8803); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(context.Background(), 40.7794, -73.8803, ref)

	// Coordinates are keyed at four decimals.
	got, ok := c.Get(context.Background(), 40.77940001, -73.8803)
	if !ok || got != ref {
		t.Errorf("expected cached ref, got %+v %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestRedisCache_UnreachableDegradesToMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := NewRedisCache(rdb)

	c.Put(context.Background(), 1, 2, GridReference{Office: "X"})
	if _, ok := c.Get(context.Background(), 1, 2); ok {
		t.Error("expected miss when redis is unreachable")
	}
}
