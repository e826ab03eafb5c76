package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitEnforcesMinimumSpacing(t *testing.T) {
	t.Parallel()

	interval := 30 * time.Millisecond
	l := New(Config{Interval: interval})
	ctx := context.Background()

	var stamps []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx, "example.com"))
		stamps = append(stamps, time.Now())
	}

	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		// Allow a small scheduling tolerance below the configured interval.
		require.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"requests %d and %d were %v apart", i-1, i, gap)
	}
}

func TestWaitIsPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "a.example.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "b.example.com"))
	require.Less(t, time.Since(start), 200*time.Millisecond,
		"a different host must not wait on the first host's slot")
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Minute})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "example.com"))

	canceled, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(canceled, "example.com")
	require.Error(t, err)
}

func TestZeroIntervalDisablesLimiting(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "example.com"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestJitterStaysWithinBound(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: 10 * time.Millisecond, JitterPct: 0.2})
	for i := 0; i < 50; i++ {
		j := l.jitter()
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.Less(t, j, 2*time.Millisecond+time.Millisecond)
	}
}
