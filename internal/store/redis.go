package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
)

const (
	identityTTL     = 7 * 24 * time.Hour
	conversationTTL = 30 * time.Second
	authCacheTTL    = time.Minute
	rateLimitTTL    = time.Minute
)

// RedisStore handles Redis operations for volatile state: identity
// snapshots, cached backend conversation lists, resolved auth tokens,
// and rate limit counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// identityKey returns the key for a watcher's last-observed identity.
func identityKey(watcherID string) string {
	return fmt.Sprintf("identity:%s:last", watcherID)
}

// conversationsKey returns the key for a user's cached conversation list.
func conversationsKey(userID string) string {
	return fmt.Sprintf("conversations:%s", userID)
}

// authTokenKey returns the key for a resolved bearer token.
func authTokenKey(tokenHash string) string {
	return fmt.Sprintf("auth:token:%s", tokenHash)
}

// LastIdentity returns the last-observed user id for a watcher, with a
// found flag distinguishing "anonymous" from "never recorded".
func (s *RedisStore) LastIdentity(ctx context.Context, watcherID string) (string, bool, error) {
	val, err := s.client.Get(ctx, identityKey(watcherID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetLastIdentity records the last-observed user id for a watcher.
// Empty string records an anonymous observation.
func (s *RedisStore) SetLastIdentity(ctx context.Context, watcherID, userID string) error {
	return s.client.Set(ctx, identityKey(watcherID), userID, identityTTL).Err()
}

// CacheConversations stores a user's backend conversation list with a
// short TTL so bursts of widget opens do not hammer the platform API.
func (s *RedisStore) CacheConversations(ctx context.Context, userID string, conversations []models.Conversation) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, conversationsKey(userID), data, conversationTTL).Err()
}

// CachedConversations returns the cached conversation list, nil on miss.
func (s *RedisStore) CachedConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	data, err := s.client.Get(ctx, conversationsKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var conversations []models.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, nil
	}
	return conversations, nil
}

// InvalidateConversations drops a user's cached conversation list.
func (s *RedisStore) InvalidateConversations(ctx context.Context, userID string) error {
	return s.client.Del(ctx, conversationsKey(userID)).Err()
}

// CacheAuthToken records the user id a bearer token resolved to.
func (s *RedisStore) CacheAuthToken(ctx context.Context, tokenHash, userID string) error {
	return s.client.Set(ctx, authTokenKey(tokenHash), userID, authCacheTTL).Err()
}

// CachedAuthToken returns the cached user id for a token, "" on miss.
func (s *RedisStore) CachedAuthToken(ctx context.Context, tokenHash string) (string, error) {
	val, err := s.client.Get(ctx, authTokenKey(tokenHash)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// rateLimitKey returns the key for a rate limit counter.
func rateLimitKey(bucket string) string {
	return fmt.Sprintf("ratelimit:%s", bucket)
}

// CheckRateLimit checks whether a bucket is under its limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, bucket string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(bucket)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments a bucket's counter within its window.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, bucket string, window time.Duration) error {
	key := rateLimitKey(bucket)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}
