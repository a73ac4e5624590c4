package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/givebridge/givebridge/internal/auth"
)

// UserCache caches resolved users between requests. Implementations treat
// every backend failure as a miss.
//
// Version returns the user's invalidation counter, or a negative value when
// it cannot be read. Set only stores the user while the counter still equals
// version, so a load that raced an Invalidate never caches the old record.
type UserCache interface {
	Get(ctx context.Context, userID string) (*User, bool)
	Version(ctx context.Context, userID string) int64
	Set(ctx context.Context, user *User, version int64)
	Invalidate(ctx context.Context, userID string)
}

const (
	userKeyPrefix    = "givebridge:user:"
	versionKeyPrefix = "givebridge:user-version:"

	// Outlives any user load by a wide margin
	versionTTL = 24 * time.Hour
)

var errStaleUser = errors.New("user changed while loading")

// RedisUserCache stores users in Redis with a short TTL
type RedisUserCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

type cachedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// NewRedisUserCache creates a cache on top of an existing client
func NewRedisUserCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisUserCache {
	return &RedisUserCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "user_cache").Logger(),
	}
}

func (c *RedisUserCache) Get(ctx context.Context, userID string) (*User, bool) {
	data, err := c.client.Get(ctx, userKeyPrefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to read cached user")
		}
		return nil, false
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("Discarding malformed cached user")
		return nil, false
	}

	return &User{ID: cu.ID, Email: cu.Email, Name: cu.Name, Role: auth.ParseRole(cu.Role)}, true
}

func (c *RedisUserCache) Version(ctx context.Context, userID string) int64 {
	version, err := c.client.Get(ctx, versionKeyPrefix+userID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0
		}
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to read user cache version")
		return -1
	}
	return version
}

func (c *RedisUserCache) Set(ctx context.Context, user *User, version int64) {
	if version < 0 {
		return
	}

	data, err := json.Marshal(cachedUser{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role.String(),
	})
	if err != nil {
		return
	}

	versionKey := versionKeyPrefix + user.ID
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleUser
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKeyPrefix+user.ID, data, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleUser), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug().Str("user_id", user.ID).Msg("Skipped caching user invalidated during load")
	default:
		c.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to cache user")
	}
}

func (c *RedisUserCache) Invalidate(ctx context.Context, userID string) {
	versionKey := versionKeyPrefix + userID
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionTTL)
		pipe.Del(ctx, userKeyPrefix+userID)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate cached user")
	}
}
