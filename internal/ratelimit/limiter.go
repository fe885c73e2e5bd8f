// Package ratelimit throttles channel callers with one token bucket per key.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Config configures the limiter.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// RequestsPerMinute is the sustained refill rate of each bucket.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	// Burst is the bucket capacity.
	Burst int `yaml:"burst"`
}

// DefaultConfig returns 30 requests per minute with a burst of 10.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 30, Burst: 10}
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter manages per-key buckets. A nil or disabled Limiter allows everything.
type Limiter struct {
	mu      sync.Mutex
	enabled bool
	rate    float64 // tokens per second
	burst   float64
	buckets map[string]*bucket
	maxKeys int
	now     func() time.Time
}

// New builds a limiter. Non-positive values fall back to DefaultConfig.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return &Limiter{
		enabled: cfg.Enabled,
		rate:    cfg.RequestsPerMinute / 60,
		burst:   float64(cfg.Burst),
		buckets: make(map[string]*bucket),
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow consumes one token for key. When the bucket is empty it returns false
// and the wait until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil || !l.enabled {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.pruneLocked(now)
		}
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.last).Seconds()*l.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// pruneLocked drops buckets that have refilled completely.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if b.tokens+now.Sub(b.last).Seconds()*l.rate >= l.burst {
			delete(l.buckets, key)
		}
	}
}
