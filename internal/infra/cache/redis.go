package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"timetable_sync_bot/internal/domain/schedule"
)

// ErrCacheMiss is returned when a key is absent or the cache is disabled.
var ErrCacheMiss = errors.New("cache miss")

const defaultTTL = 10 * time.Minute

// NewRedis connects using a redis:// URL and pings the server.
func NewRedis(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// LessonKey names a cached lesson list. The run ID is part of the key, so a
// promotion makes every older entry unreachable.
func LessonKey(runID, scope, id, date string) string {
	return strings.Join([]string{"lessons", runID, scope, id, date}, ":")
}

// LessonCache stores lesson lists as JSON.
type LessonCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLessonCache wraps client. A nil client yields a cache that always misses.
func NewLessonCache(client *redis.Client, ttl time.Duration) *LessonCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LessonCache{client: client, ttl: ttl}
}

func (c *LessonCache) Get(ctx context.Context, key string) ([]schedule.Lesson, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheMiss
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var lessons []schedule.Lesson
	if err := json.Unmarshal(raw, &lessons); err != nil {
		return nil, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return lessons, nil
}

func (c *LessonCache) Set(ctx context.Context, key string, lessons []schedule.Lesson) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload, err := json.Marshal(lessons)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
