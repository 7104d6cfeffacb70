package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowTTL outlives the one-second window so late INCRs still expire.
const windowTTL = 2 * time.Second

var incrWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return hits
`)

// RedisLimiter is a fixed-window limiter shared across replicas through Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow counts one hit for key in the current second.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	result := Result{Limit: limit, Reset: time.Unix(sec+1, 0).UTC()}

	hits, errRun := incrWindowScript.Run(ctx, l.client, []string{l.windowKey(key, sec)}, windowTTL.Milliseconds()).Int64()
	if errRun != nil {
		return Result{}, fmt.Errorf("rate limit redis: %w", errRun)
	}
	if hits > int64(limit) {
		return result, nil
	}
	result.Allowed = true
	result.Remaining = limit - int(hits)
	return result, nil
}

func (l *RedisLimiter) windowKey(key string, sec int64) string {
	parts := make([]string, 0, 3)
	if l.prefix != "" {
		parts = append(parts, l.prefix)
	}
	parts = append(parts, key, strconv.FormatInt(sec, 10))
	return strings.Join(parts, ":")
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("rate limit redis: no client")
	}
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
