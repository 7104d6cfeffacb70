package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter counts hits per key in one-second windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// Settings is the limiter configuration snapshot.
type Settings struct {
	Limit         int // Requests per contractor per second; 0 disables limiting.
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() Settings

// StaticSettings returns a provider that always yields s.
func StaticSettings(s Settings) SettingsProvider {
	return func() Settings { return s }
}
