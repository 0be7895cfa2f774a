package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Policy is a named fixed-window throttle.
type Policy struct {
	Action string
	Limit  int
	Window time.Duration
}

// Limiter counts one attempt for key and reports whether it is admitted.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// WindowStart truncates now to the start of its fixed window.
func WindowStart(now time.Time, window time.Duration) time.Time {
	if window <= 0 {
		return now
	}
	return now.Truncate(window)
}

func counterKey(action string, userID int64) string {
	return fmt.Sprintf("%s:%d", action, userID)
}

type CounterStore interface {
	Hit(ctx context.Context, key string, windowStart time.Time, limit int, expiresAt time.Time) (bool, error)
}

// StoreLimiter keeps counters in the relational store.
type StoreLimiter struct {
	counters CounterStore
	now      func() time.Time
}

func NewStoreLimiter(counters CounterStore) *StoreLimiter {
	return &StoreLimiter{counters: counters, now: time.Now}
}

func (l *StoreLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	start := WindowStart(l.now().UTC(), window)
	return l.counters.Hit(ctx, key, start, limit, start.Add(window))
}

// RedisCounter is the part of *redis.Client the limiter needs.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
}

// RedisLimiter keeps one INCR counter per key and window.
type RedisLimiter struct {
	client RedisCounter
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client RedisCounter) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:", now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	start := WindowStart(l.now().UTC(), window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, start.Unix())
	hits, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if hits == 1 {
		if err := l.client.ExpireAt(ctx, redisKey, start.Add(window)).Err(); err != nil {
			return false, err
		}
	}
	return hits <= int64(limit), nil
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		MaxRetries:      5,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolSize:        5,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
