package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	breakerCooldown = 30 * time.Second
	pingTimeout     = 2 * time.Second
)

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

type redisTarget struct {
	addr     string
	password string
	prefix   string
	db       int
}

// Manager enforces limits through Redis when configured and reachable, and
// through an in-process limiter otherwise. A failing Redis is bypassed for
// breakerCooldown before it is tried again.
type Manager struct {
	settings       SettingsProvider
	now            func() time.Time
	memory         Limiter
	newRedisClient RedisClientFactory

	mu          sync.Mutex
	redis       *RedisLimiter
	target      redisTarget
	bypassUntil time.Time
}

// NewManager constructs a Manager. Nil arguments fall back to defaults.
func NewManager(settings SettingsProvider, now func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if settings == nil {
		settings = StaticSettings(Settings{})
	}
	if now == nil {
		now = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		settings:       settings,
		now:            now,
		memory:         NewMemoryLimiter(),
		newRedisClient: newRedisClient,
	}
}

// Limit returns the configured per-second limit.
func (m *Manager) Limit() int {
	if m == nil {
		return 0
	}
	return m.settings().Limit
}

// Allow counts one hit for key against the configured limit.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	if m == nil || key == "" {
		return Result{Allowed: true}, nil
	}
	cfg := m.settings()
	if cfg.Limit <= 0 {
		return Result{Allowed: true}, nil
	}
	now := m.now()
	if cfg.RedisEnabled {
		if result, ok := m.allowRedis(ctx, key, now, cfg); ok {
			return result, nil
		}
	}
	return m.memory.Allow(ctx, key, cfg.Limit, now)
}

// Close drops the Redis connection if one is open.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		return nil
	}
	errClose := m.redis.Close()
	m.redis = nil
	return errClose
}

func (m *Manager) allowRedis(ctx context.Context, key string, now time.Time, cfg Settings) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.bypassed(now) {
		return Result{}, false
	}
	limiter, errConnect := m.connect(ctx, cfg)
	if errConnect != nil {
		m.trip(errConnect, now)
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, cfg.Limit, now)
	if errAllow != nil {
		m.trip(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) bypassed(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bypassUntil.IsZero() {
		return false
	}
	if now.Before(m.bypassUntil) {
		return true
	}
	m.bypassUntil = time.Time{}
	return false
}

func (m *Manager) trip(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.bypassUntil) {
		return
	}
	m.bypassUntil = now.Add(breakerCooldown)
	log.WithError(err).Warn("rate limit: redis unavailable, using in-memory limiter")
}

// connect returns a limiter for the configured Redis target, reconnecting
// when the target changed.
func (m *Manager) connect(ctx context.Context, cfg Settings) (*RedisLimiter, error) {
	next := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: cfg.RedisPassword,
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       max(cfg.RedisDB, 0),
	}
	if next.addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis != nil && m.target == next {
		return m.redis, nil
	}
	if m.redis != nil {
		_ = m.redis.Close()
		m.redis = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     next.addr,
		Password: next.password,
		DB:       next.db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, next.prefix)
	m.target = next
	return m.redis, nil
}

// Ping reports whether the configured Redis backend answers. It returns nil
// when Redis is not enabled.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil {
		return nil
	}
	cfg := m.settings()
	if !cfg.RedisEnabled {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	limiter, errConnect := m.connect(ctx, cfg)
	if errConnect != nil {
		return errConnect
	}
	return limiter.Ping(ctx)
}
