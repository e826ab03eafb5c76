package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shelfsync/internal/cache/memory"
	"shelfsync/internal/scrape"
)

// --- fakes ---

type fakePool struct {
	mu       sync.Mutex
	addrs    []string
	next     int
	err      error
	acquires int
	reports  []scrape.ProxyOutcome
}

func (p *fakePool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.acquires++
	addr := p.addrs[p.next%len(p.addrs)]
	p.next++
	return addr, nil
}

func (p *fakePool) Report(_ string, outcome scrape.ProxyOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, outcome)
}

type fakeLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *fakeLimiter) Wait(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return nil
}

type getterResponse struct {
	status int
	body   []byte
	err    error
}

type fakeGetter struct {
	mu        sync.Mutex
	responses []getterResponse
	calls     int
}

func (g *fakeGetter) Get(context.Context, string, string) (int, []byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := g.responses[g.calls%len(g.responses)]
	g.calls++
	return resp.status, resp.body, resp.err
}

func newTestFetcher(t *testing.T, getter Getter, pool *fakePool, limiter *fakeLimiter) (*Fetcher, *memory.Cache) {
	t.Helper()
	cache := memory.New()
	f := New(cache, pool, limiter, getter, Config{
		BaseURL:     "https://www.goodreads.com",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}, zap.NewNop())
	return f, cache
}

// --- tests ---

func TestFetchSuccessStoresPage(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080"}}
	limiter := &fakeLimiter{}
	getter := &fakeGetter{responses: []getterResponse{
		{status: http.StatusOK, body: []byte("<html>ok</html>")},
	}}
	f, cache := newTestFetcher(t, getter, pool, limiter)

	key := scrape.NewSourceKey(scrape.KindBook, "54493401")
	res, err := f.Fetch(context.Background(), key, scrape.ForceRefetch)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, []byte("<html>ok</html>"), res.Body)

	stored, ok, err := cache.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.Body, stored)
	require.Equal(t, []scrape.ProxyOutcome{scrape.ProxySuccess}, pool.reports)
}

func TestFetchPreferCacheHitSkipsNetwork(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080"}}
	limiter := &fakeLimiter{}
	getter := &fakeGetter{responses: []getterResponse{{status: http.StatusOK, body: []byte("net")}}}
	f, cache := newTestFetcher(t, getter, pool, limiter)

	key := scrape.NewSourceKey(scrape.KindBook, "1")
	require.NoError(t, cache.Put(key, []byte("cached")))

	res, err := f.Fetch(context.Background(), key, scrape.PreferCache)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, []byte("cached"), res.Body)

	// No rate-limit or proxy cost on a cache hit.
	require.Zero(t, limiter.waits)
	require.Zero(t, pool.acquires)
	require.Zero(t, getter.calls)
}

func TestFetchForceRefetchOverwritesCache(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080"}}
	getter := &fakeGetter{responses: []getterResponse{{status: http.StatusOK, body: []byte("fresh")}}}
	f, cache := newTestFetcher(t, getter, pool, &fakeLimiter{})

	key := scrape.NewSourceKey(scrape.KindBook, "1")
	require.NoError(t, cache.Put(key, []byte("stale")))

	res, err := f.Fetch(context.Background(), key, scrape.ForceRefetch)
	require.NoError(t, err)
	require.False(t, res.FromCache)

	stored, _, err := cache.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("fresh"), stored)
}

func TestFetchNetworkFailureExhaustsAttempts(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080", "10.0.0.2:8080"}}
	limiter := &fakeLimiter{}
	getter := &fakeGetter{responses: []getterResponse{
		{err: errors.New("dial timeout")},
	}}
	f, _ := newTestFetcher(t, getter, pool, limiter)

	key := scrape.NewSourceKey(scrape.KindAuthor, "18541")
	_, err := f.Fetch(context.Background(), key, scrape.ForceRefetch)

	fe, ok := scrape.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, scrape.FailNetwork, fe.Kind)
	require.Equal(t, 3, getter.calls, "exactly MaxAttempts network tries")
	require.Equal(t, 3, limiter.waits, "each retry re-enters the rate limiter")
	for _, outcome := range pool.reports {
		require.Equal(t, scrape.ProxyFailure, outcome)
	}
}

func TestFetchBlockedRetriesOnceThenSurfaces(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080", "10.0.0.2:8080"}}
	getter := &fakeGetter{responses: []getterResponse{
		{status: http.StatusForbidden},
	}}
	f, _ := newTestFetcher(t, getter, pool, &fakeLimiter{})

	_, err := f.Fetch(context.Background(), scrape.NewSourceKey(scrape.KindBook, "1"), scrape.ForceRefetch)

	fe, ok := scrape.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, scrape.FailBlocked, fe.Kind)
	require.Equal(t, 2, getter.calls, "one retry through a different proxy")
	require.Equal(t, []scrape.ProxyOutcome{scrape.ProxyBlocked, scrape.ProxyBlocked}, pool.reports)
}

func TestFetchBlockedOnLastAttemptClassifiedAsBlocked(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080"}}
	getter := &fakeGetter{responses: []getterResponse{{status: http.StatusForbidden}}}
	f := New(memory.New(), pool, &fakeLimiter{}, getter, Config{
		BaseURL:     "https://www.goodreads.com",
		MaxAttempts: 1,
	}, zap.NewNop())

	_, err := f.Fetch(context.Background(), scrape.NewSourceKey(scrape.KindBook, "1"), scrape.ForceRefetch)

	fe, ok := scrape.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, scrape.FailBlocked, fe.Kind, "a block on the final attempt is not a network failure")
	require.Equal(t, 1, getter.calls)
	require.Equal(t, []scrape.ProxyOutcome{scrape.ProxyBlocked}, pool.reports)
}

func TestFetchBlockedThenSuccessRecovers(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080", "10.0.0.2:8080"}}
	getter := &fakeGetter{responses: []getterResponse{
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: []byte("ok")},
	}}
	f, _ := newTestFetcher(t, getter, pool, &fakeLimiter{})

	res, err := f.Fetch(context.Background(), scrape.NewSourceKey(scrape.KindBook, "1"), scrape.ForceRefetch)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), res.Body)
	require.Equal(t, []scrape.ProxyOutcome{scrape.ProxyBlocked, scrape.ProxySuccess}, pool.reports)
}

func TestFetchNoProxyFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	pool := &fakePool{err: scrape.ErrNoProxy}
	getter := &fakeGetter{responses: []getterResponse{{status: http.StatusOK}}}
	f, _ := newTestFetcher(t, getter, pool, &fakeLimiter{})

	_, err := f.Fetch(context.Background(), scrape.NewSourceKey(scrape.KindBook, "1"), scrape.ForceRefetch)

	fe, ok := scrape.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, scrape.FailNoProxy, fe.Kind)
	require.ErrorIs(t, err, scrape.ErrNoProxy)
	require.Zero(t, getter.calls)
}

func TestFetchCanceledContextStopsRetries(t *testing.T) {
	t.Parallel()

	pool := &fakePool{addrs: []string{"10.0.0.1:8080"}}
	getter := &fakeGetter{responses: []getterResponse{{err: errors.New("timeout")}}}
	f, _ := newTestFetcher(t, getter, pool, &fakeLimiter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, scrape.NewSourceKey(scrape.KindBook, "1"), scrape.ForceRefetch)
	require.Error(t, err)
	require.LessOrEqual(t, getter.calls, 1)
}

func TestPageURLPerKind(t *testing.T) {
	t.Parallel()

	base := "https://www.goodreads.com"
	cases := map[scrape.SourceKey]string{
		scrape.NewSourceKey(scrape.KindBook, "54493401"):       base + "/book/show/54493401",
		scrape.NewSourceKey(scrape.KindAuthor, "18541"):        base + "/author/show/18541",
		scrape.NewSourceKey(scrape.KindSeries, "45175"):        base + "/series/show/45175",
		scrape.NewSourceKey(scrape.KindSimilar, "54493401"):    base + "/book/similar/54493401",
		scrape.NewSourceKey(scrape.KindList, "1"):              base + "/list/show/1",
		{Kind: scrape.KindList, ID: "1", Variant: "page3"}:     base + "/list/show/1?page=3",
		scrape.NewSourceKey(scrape.KindEditions, "56597885"):   base + "/work/editions/56597885?page=1&per_page=100",
		{Kind: scrape.KindEditions, ID: "5", Variant: "page2"}: base + "/work/editions/5?page=2&per_page=100",
	}
	for key, want := range cases {
		require.Equal(t, want, PageURL(base, key), "key %s", key)
	}
}
