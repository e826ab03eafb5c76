// Package ratelimit enforces a minimum inter-request interval per external
// host, shared process-wide across every worker that fetches.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shelfsync/internal/telemetry"
)

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum spacing between requests to one host.
	Interval time.Duration
	// JitterPct adds up to this fraction of Interval as random extra delay,
	// so concurrent retries do not line up.
	JitterPct float64
}

// Limiter manages per-host limiters. The zero interval disables limiting.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
	rng      *rand.Rand
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.JitterPct < 0 {
		cfg.JitterPct = 0
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until the host's slot opens, then applies jitter. Respects the
// context; a canceled wait does not consume the slot's spacing.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l.cfg.Interval <= 0 {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.cfg.Interval), 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if jitter := l.jitter(); jitter > 0 {
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) jitter() time.Duration {
	if l.cfg.JitterPct <= 0 {
		return 0
	}
	limit := time.Duration(float64(l.cfg.Interval) * l.cfg.JitterPct)
	if limit <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.rng.Int63n(int64(limit)))
}
