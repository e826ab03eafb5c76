// Package fetch composes the proxy pool, the per-host rate limiter, the page
// cache, and an HTTP transport into a single "get page for key" operation
// with bounded retries and failure classification.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shelfsync/internal/scrape"
	"shelfsync/internal/telemetry"
)

// Getter performs one HTTP GET through one proxy. Implemented by CollyGetter
// in production and by fakes in tests.
type Getter interface {
	Get(ctx context.Context, url, proxyAddr string) (status int, body []byte, err error)
}

// Config controls Fetcher behavior.
type Config struct {
	// BaseURL is the root of the external source, e.g. "https://www.goodreads.com".
	BaseURL string
	// MaxAttempts bounds network tries per fetch, counting the first.
	MaxAttempts int
	// BackoffBase and BackoffMax bound the delay between attempts.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Fetcher retrieves pages, consulting the cache first in PreferCache mode
// and funneling all network activity through the shared limiter and pool.
type Fetcher struct {
	cache   scrape.PageCache
	pool    scrape.ProxyPool
	limiter scrape.RateLimiter
	getter  Getter
	cfg     Config
	backoff backoff
	logger  *zap.Logger
}

// New constructs a Fetcher.
func New(
	cache scrape.PageCache,
	pool scrape.ProxyPool,
	limiter scrape.RateLimiter,
	getter Getter,
	cfg Config,
	logger *zap.Logger,
) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cache:   cache,
		pool:    pool,
		limiter: limiter,
		getter:  getter,
		cfg:     cfg,
		backoff: backoff{baseDelay: cfg.BackoffBase, maxDelay: cfg.BackoffMax},
		logger:  logger,
	}
}

// Fetch returns the raw page behind the key. A cache hit in PreferCache mode
// costs neither a rate-limit slot nor a proxy.
func (f *Fetcher) Fetch(ctx context.Context, key scrape.SourceKey, mode scrape.FetchMode) (scrape.FetchResult, error) {
	if mode == scrape.PreferCache {
		body, ok, err := f.cache.Get(key)
		if err != nil {
			return scrape.FetchResult{}, fmt.Errorf("cache read: %w", err)
		}
		if ok {
			telemetry.ObservePageFetched(string(key.Kind), "cache")
			return scrape.FetchResult{Key: key, Body: body, FromCache: true}, nil
		}
	}
	return f.fetchNetwork(ctx, key)
}

func (f *Fetcher) fetchNetwork(ctx context.Context, key scrape.SourceKey) (scrape.FetchResult, error) {
	url := PageURL(f.cfg.BaseURL, key)
	host := Host(url)

	var lastErr error
	lastKind := scrape.FailNetwork
	blocks := 0
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.pause(ctx, f.backoff.delay(attempt-1)); err != nil {
				return scrape.FetchResult{}, f.fail(key, scrape.FailNetwork, err)
			}
		}

		if err := f.limiter.Wait(ctx, host); err != nil {
			return scrape.FetchResult{}, f.fail(key, scrape.FailNetwork, err)
		}

		addr, err := f.pool.Acquire()
		if err != nil {
			if errors.Is(err, scrape.ErrNoProxy) {
				return scrape.FetchResult{}, f.fail(key, scrape.FailNoProxy, err)
			}
			return scrape.FetchResult{}, f.fail(key, scrape.FailNetwork, err)
		}

		status, body, err := f.getter.Get(ctx, url, addr)
		switch {
		case isBlockStatus(status):
			f.pool.Report(addr, scrape.ProxyBlocked)
			blocks++
			f.logger.Warn("source blocked request",
				zap.String("key", key.String()),
				zap.String("proxy", addr),
				zap.Int("status", status),
			)
			// One retry through a different proxy; repeated blocks surface.
			if blocks >= 2 {
				return scrape.FetchResult{}, f.fail(key, scrape.FailBlocked,
					fmt.Errorf("status %d", status))
			}
			lastErr = fmt.Errorf("status %d", status)
			lastKind = scrape.FailBlocked
		case err != nil:
			f.pool.Report(addr, scrape.ProxyFailure)
			f.logger.Debug("fetch attempt failed",
				zap.String("key", key.String()),
				zap.String("proxy", addr),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			lastErr = err
			lastKind = scrape.FailNetwork
		case status != http.StatusOK:
			f.pool.Report(addr, scrape.ProxyFailure)
			lastErr = fmt.Errorf("unexpected status %d", status)
			lastKind = scrape.FailNetwork
		default:
			f.pool.Report(addr, scrape.ProxySuccess)
			if err := f.cache.Put(key, body); err != nil {
				// Unwritable cache storage is fatal to the run, not a retryable
				// fetch failure.
				return scrape.FetchResult{}, fmt.Errorf("cache write: %w", err)
			}
			telemetry.ObservePageFetched(string(key.Kind), "network")
			return scrape.FetchResult{Key: key, Body: body, FromCache: false}, nil
		}

		if ctx.Err() != nil {
			return scrape.FetchResult{}, f.fail(key, scrape.FailNetwork, ctx.Err())
		}
	}

	// When the attempt budget ran out on a block, surface it as such rather
	// than folding it into a generic network failure.
	return scrape.FetchResult{}, f.fail(key, lastKind, lastErr)
}

func (f *Fetcher) fail(key scrape.SourceKey, kind scrape.FailKind, err error) error {
	telemetry.ObserveFetchFailure(string(key.Kind), string(kind))
	return &scrape.FetchError{Kind: kind, Key: key, Err: err}
}

func (f *Fetcher) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isBlockStatus(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}
