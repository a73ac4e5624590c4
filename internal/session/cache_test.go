package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/givebridge/givebridge/internal/auth"
)

// An unreachable Redis must degrade to cache misses, never to failures
func TestRedisUserCache_UnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cache := NewRedisUserCache(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	version := cache.Version(ctx, "u1")
	assert.Negative(t, version)

	cache.Set(ctx, &User{ID: "u1", Role: auth.RoleDonor}, version)
	cache.Set(ctx, &User{ID: "u1", Role: auth.RoleDonor}, 0)
	_, ok := cache.Get(ctx, "u1")
	assert.False(t, ok)

	cache.Invalidate(ctx, "u1")
}
