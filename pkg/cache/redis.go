// Package cache implements a Redis read-through cache for user profiles and
// conversations. The cache is optional: every operation degrades to a miss
// when Redis is unreachable, so callers never fail on cache errors.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/companionlabs/companion-go/pkg/core"
)

const (
	profileKeyPrefix      = "user_profile:"
	conversationKeyPrefix = "conversation:"
)

// Cache wraps a Redis client with TTL-bounded get/set helpers for the
// domain records. All operations run under a per-call timeout so a slow
// Redis cannot stall the request path.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewCache connects to Redis using a URL of the form
// redis://[user:pass@]host:port/db and verifies the connection.
//
// Parameters:
//   - redisURL: connection URL, e.g. "redis://localhost:6379/0"
//   - ttl: expiry applied to every cached record
//   - timeout: per-operation deadline
//
// Returns:
//   - *Cache: connected cache
//   - error: URL parse or connection failure
func NewCache(redisURL string, ttl, timeout time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &Cache{client: client, ttl: ttl, timeout: timeout}, nil
}

// Client exposes the underlying Redis client for components that share the
// connection, such as the rate limiter.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}

func conversationKey(userID, sessionID string) string {
	return conversationKeyPrefix + userID + ":" + sessionID
}

// GetProfile returns the cached profile for a user, or (nil, nil) on a miss.
func (c *Cache) GetProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	var profile core.UserProfile
	ok, err := c.get(ctx, profileKey(userID), &profile)
	if err != nil || !ok {
		return nil, err
	}
	return &profile, nil
}

// SetProfile caches a profile under the user's key with the configured TTL.
func (c *Cache) SetProfile(ctx context.Context, profile *core.UserProfile) error {
	return c.set(ctx, profileKey(profile.UserID), profile)
}

// InvalidateProfile removes a user's cached profile.
func (c *Cache) InvalidateProfile(ctx context.Context, userID string) error {
	return c.del(ctx, profileKey(userID))
}

// GetConversation returns the cached conversation, or (nil, nil) on a miss.
func (c *Cache) GetConversation(ctx context.Context, userID, sessionID string) (*core.Conversation, error) {
	var conv core.Conversation
	ok, err := c.get(ctx, conversationKey(userID, sessionID), &conv)
	if err != nil || !ok {
		return nil, err
	}
	return &conv, nil
}

// SetConversation caches a conversation with the configured TTL.
func (c *Cache) SetConversation(ctx context.Context, conv *core.Conversation) error {
	return c.set(ctx, conversationKey(conv.UserID, conv.SessionID), conv)
}

// InvalidateConversation removes a cached conversation.
func (c *Cache) InvalidateConversation(ctx context.Context, userID, sessionID string) error {
	return c.del(ctx, conversationKey(userID, sessionID))
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, core.NewChatError("cache.get", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry behaves like a miss; the next set overwrites it.
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return core.NewChatError("cache.set", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return core.NewChatError("cache.set", err)
	}
	return nil
}

func (c *Cache) del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return core.NewChatError("cache.invalidate", err)
	}
	return nil
}

// Ping verifies the Redis connection is still healthy.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
