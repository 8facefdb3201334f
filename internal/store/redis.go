package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
)

const (
	liveChannelPrefix = "live:"
	rateLimitTTL      = time.Minute
)

// RedisStore handles Redis operations: the cross-instance live-event bus and
// rate limiting.
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

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Publish sends a live event over Redis pub/sub so every instance's broker
// sees it. Implements live.Publisher.
func (s *RedisStore) Publish(ctx context.Context, ev live.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, liveChannelPrefix+ev.Channel, data).Err()
}

// RunEventBridge forwards events from Redis pub/sub into the local broker.
// It blocks until ctx is cancelled. Dropped pub/sub connections are
// reconnected by the redis client, not by this code.
func (s *RedisStore) RunEventBridge(ctx context.Context, broker *live.Broker) error {
	sub := s.client.PSubscribe(ctx, liveChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev live.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.Channel == "" {
				ev.Channel = strings.TrimPrefix(msg.Channel, liveChannelPrefix)
			}
			_ = broker.Publish(ctx, ev)
		}
	}
}

// rateLimitKey returns the key for a user's rate limit counter.
func rateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}

// CheckRateLimit checks if a user is under the per-minute request limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, userID string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(userID)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the rate limit counter.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, rateLimitKey(userID))
	pipe.Expire(ctx, rateLimitKey(userID), rateLimitTTL)
	_, err := pipe.Exec(ctx)
	return err
}
