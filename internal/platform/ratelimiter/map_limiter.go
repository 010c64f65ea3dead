package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL = 10 * time.Minute
	sweepEvery     = 512
)

type Config struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
}

// MapLimiter keeps one token bucket per caller key. Buckets idle for longer
// than IdleTTL are dropped on a periodic sweep.
type MapLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*bucket
	calls uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns nil when the config disables limiting; a nil limiter allows everything.
func New(cfg Config) *MapLimiter {
	if cfg.RPS <= 0 || cfg.Burst <= 0 {
		return nil
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &MapLimiter{
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		byKey:   make(map[string]*bucket),
	}
}

func (l *MapLimiter) Allow(key string, now time.Time) bool {
	return l.AllowN(key, 1, now)
}

// AllowN consumes cost tokens for key. Blank keys are never limited.
func (l *MapLimiter) AllowN(key string, cost int, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}
	if cost < 1 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, cost)

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}
	return allowed
}

func (l *MapLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (l *MapLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for key, b := range l.byKey {
		if b.lastSeen.Before(cutoff) {
			delete(l.byKey, key)
		}
	}
}
