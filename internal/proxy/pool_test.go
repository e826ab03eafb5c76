package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shelfsync/internal/scrape"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestPool(addrs []string, cfg Config, clock scrape.Clock) *Pool {
	return New(addrs, cfg, clock, zap.NewNop())
}

func TestPoolAcquirePrefersLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	pool := newTestPool([]string{"10.0.0.1:8080", "10.0.0.2:8080"}, Config{}, clock)

	first, err := pool.Acquire()
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Second)
	second, err := pool.Acquire()
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// The first address has been idle longest again.
	clock.now = clock.now.Add(time.Second)
	third, err := pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, first, third)
}

func TestPoolBlacklistsAfterFailureThreshold(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	pool := newTestPool([]string{"10.0.0.1:8080"}, Config{
		MaxFailures: 3,
		Cooldown:    5 * time.Minute,
	}, clock)

	for i := 0; i < 2; i++ {
		pool.Report("10.0.0.1:8080", scrape.ProxyFailure)
		_, err := pool.Acquire()
		require.NoError(t, err, "below threshold the record stays eligible")
	}

	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)
	_, err := pool.Acquire()
	require.ErrorIs(t, err, scrape.ErrNoProxy)

	// Eligible again once the cooldown expires.
	clock.now = clock.now.Add(5*time.Minute + time.Second)
	addr, err := pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:8080", addr)
}

func TestPoolSuccessResetsFailures(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	pool := newTestPool([]string{"10.0.0.1:8080"}, Config{MaxFailures: 3}, clock)

	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)
	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)
	pool.Report("10.0.0.1:8080", scrape.ProxySuccess)

	// Two more failures stay below the threshold after the reset.
	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)
	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)
	_, err := pool.Acquire()
	require.NoError(t, err)
}

func TestPoolBlockedBlacklistsImmediately(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	pool := newTestPool([]string{"10.0.0.1:8080"}, Config{
		MaxFailures:   3,
		Cooldown:      5 * time.Minute,
		BlockCooldown: 30 * time.Minute,
	}, clock)

	pool.Report("10.0.0.1:8080", scrape.ProxyBlocked)
	_, err := pool.Acquire()
	require.ErrorIs(t, err, scrape.ErrNoProxy)

	// Still cooling down after the plain-failure window.
	clock.now = clock.now.Add(6 * time.Minute)
	_, err = pool.Acquire()
	require.ErrorIs(t, err, scrape.ErrNoProxy)

	clock.now = clock.now.Add(25 * time.Minute)
	_, err = pool.Acquire()
	require.NoError(t, err)
}

func TestPoolTiesBrokenByFailureCount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	pool := newTestPool([]string{"10.0.0.1:8080", "10.0.0.2:8080"}, Config{MaxFailures: 5}, clock)

	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)

	addr, err := pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2:8080", addr)
}

func TestHealthRoundTrip(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	pool := newTestPool([]string{"10.0.0.1:8080", "10.0.0.2:8080"}, Config{
		MaxFailures: 1,
		Cooldown:    10 * time.Minute,
	}, clock)
	pool.Report("10.0.0.1:8080", scrape.ProxyFailure)

	path := filepath.Join(t.TempDir(), "proxy_health.json")
	require.NoError(t, SaveHealth(path, pool, clock.now))

	restored := newTestPool([]string{"10.0.0.1:8080", "10.0.0.2:8080"}, Config{
		MaxFailures: 1,
		Cooldown:    10 * time.Minute,
	}, clock)
	require.NoError(t, LoadHealth(path, restored))

	addr, err := restored.Acquire()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2:8080", addr)
}

func TestLoadListSkipsCommentsAndBlanks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# fetched 2026-08-20\n10.0.0.1:8080\n\n10.0.0.2:3128\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	addrs, err := LoadList(path)
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:8080", "10.0.0.2:3128"}, addrs)
}
