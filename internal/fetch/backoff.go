package fetch

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// backoff computes jittered exponential delays between fetch attempts.
type backoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// delay returns the wait duration before the given retry attempt (attempt 1
// is the first retry).
func (b backoff) delay(attempt int) time.Duration {
	base := b.baseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	maxDelay := b.maxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	half := time.Duration(d / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
