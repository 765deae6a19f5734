// Package cache is a best-effort Redis cache for GET lookups. Cache failures
// are logged and swallowed; the store stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/pkg/models"
)

const (
	keyPrefix  = "user:"
	defaultTTL = 5 * time.Minute
)

// UserCache caches user records by selector key. A nil *UserCache is valid
// and disables caching, so callers never need to branch on availability.
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a UserCache over an established Redis client.
func New(client *redis.Client, logger *zap.Logger) *UserCache {
	return &UserCache{client: client, ttl: defaultTTL, logger: logger}
}

// Connect dials Redis and returns a cache, or nil when Redis is unreachable.
func Connect(addr string, logger *zap.Logger) *UserCache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, lookup caching disabled", zap.Error(err))
		return nil
	}
	logger.Info("connected to Redis")
	return New(client, logger)
}

// SelectorKey builds the cache key for a GET selector. The selector is
// assumed to carry exactly one non-blank field (the query builder enforces
// that before any cache access).
func SelectorKey(sel models.UserSelector) string {
	switch {
	case strings.TrimSpace(sel.Username) != "":
		return keyPrefix + "username:" + strings.ToLower(sel.Username)
	case strings.TrimSpace(sel.Email) != "":
		return keyPrefix + "email:" + strings.ToLower(sel.Email)
	default:
		return keyPrefix + "phone:" + sel.Phone
	}
}

func userKeys(u models.User) []string {
	keys := []string{
		keyPrefix + "username:" + strings.ToLower(u.Username),
		keyPrefix + "email:" + strings.ToLower(u.Email),
	}
	if u.Phone != "" {
		keys = append(keys, keyPrefix+"phone:"+u.Phone)
	}
	return keys
}

// Get returns the cached user for the key, and whether it was a hit.
func (c *UserCache) Get(ctx context.Context, key string) (*models.User, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return &u, true
}

// Set stores the user under all of its selector keys.
func (c *UserCache) Set(ctx context.Context, u models.User) {
	if c == nil {
		return
	}

	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	for _, key := range userKeys(u) {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Invalidate drops every selector key of the user. Callers pass the
// pre-image on UPDATE so keys for the old username/email go too.
func (c *UserCache) Invalidate(ctx context.Context, users ...models.User) {
	if c == nil {
		return
	}

	var keys []string
	for _, u := range users {
		keys = append(keys, userKeys(u)...)
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", zap.Error(err))
	}
}
