package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold is the key count above which stale windows are dropped.
const pruneThreshold = 4096

type window struct {
	second int64
	hits   int
}

// MemoryLimiter is a process-local fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

// Allow counts one hit for key in the current second.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	result := Result{Limit: limit, Reset: time.Unix(sec+1, 0).UTC()}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > pruneThreshold {
		for k, w := range l.windows {
			if w.second < sec {
				delete(l.windows, k)
			}
		}
	}
	w, ok := l.windows[key]
	if !ok || w.second != sec {
		w = &window{second: sec}
		l.windows[key] = w
	}
	if w.hits >= limit {
		return result, nil
	}
	w.hits++
	result.Allowed = true
	result.Remaining = limit - w.hits
	return result, nil
}
