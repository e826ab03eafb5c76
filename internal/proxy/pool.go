// Package proxy manages the pool of egress addresses used for scraping,
// tracking per-address health and withholding addresses that keep failing.
package proxy

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"shelfsync/internal/scrape"
	"shelfsync/internal/telemetry"
)

// Record holds the health metadata for one egress address.
type Record struct {
	Address          string    `json:"address"`
	Failures         int       `json:"failures"`
	BlacklistedUntil time.Time `json:"blacklisted_until"`
	LastUsed         time.Time `json:"last_used"`
}

// Config controls pool behavior.
type Config struct {
	// MaxFailures is the consecutive-failure count at which a record enters
	// its cooldown.
	MaxFailures int
	// Cooldown is the blacklist window after MaxFailures plain failures.
	Cooldown time.Duration
	// BlockCooldown is the longer window applied when the source explicitly
	// denies a request.
	BlockCooldown time.Duration
}

// Pool selects egress addresses least-recently-used first, skipping records
// inside their blacklist window. State mutation is serialized; the pool is
// shared by every worker in the process.
type Pool struct {
	mu      sync.Mutex
	records []*Record
	cfg     Config
	clock   scrape.Clock
	logger  *zap.Logger
}

// New builds a pool over the given addresses.
func New(addresses []string, cfg Config, clock scrape.Clock, logger *zap.Logger) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{cfg: cfg, clock: clock, logger: logger}
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		p.records = append(p.records, &Record{Address: addr})
	}
	return p
}

// Acquire returns the next usable address, preferring the one idle longest;
// ties go to the lowest failure count. Returns scrape.ErrNoProxy when every
// record is inside its blacklist window.
func (p *Pool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	eligible := make([]*Record, 0, len(p.records))
	for _, r := range p.records {
		if r.BlacklistedUntil.After(now) {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return "", scrape.ErrNoProxy
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].LastUsed.Equal(eligible[j].LastUsed) {
			return eligible[i].LastUsed.Before(eligible[j].LastUsed)
		}
		return eligible[i].Failures < eligible[j].Failures
	})

	chosen := eligible[0]
	chosen.LastUsed = now
	return chosen.Address, nil
}

// Report feeds the outcome of one request back into the record's health.
func (p *Pool) Report(addr string, outcome scrape.ProxyOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.find(addr)
	if rec == nil {
		return
	}

	now := p.clock.Now()
	switch outcome {
	case scrape.ProxySuccess:
		rec.Failures = 0
		rec.LastUsed = now
	case scrape.ProxyFailure:
		rec.Failures++
		if rec.Failures >= p.cfg.MaxFailures {
			rec.BlacklistedUntil = now.Add(p.cfg.Cooldown)
			rec.Failures = 0
			telemetry.ObserveProxyBlacklisted()
			p.logger.Warn("proxy blacklisted after repeated failures",
				zap.String("proxy", rec.Address),
				zap.Duration("cooldown", p.cfg.Cooldown),
			)
		}
	case scrape.ProxyBlocked:
		// Explicit denial from the source; cool down immediately and longer.
		rec.BlacklistedUntil = now.Add(p.cfg.BlockCooldown)
		rec.Failures = 0
		telemetry.ObserveProxyBlacklisted()
		p.logger.Warn("proxy blacklisted after explicit block",
			zap.String("proxy", rec.Address),
			zap.Duration("cooldown", p.cfg.BlockCooldown),
		)
	}
}

// Size returns the number of records, usable or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Snapshot copies the current records, for the health metadata file.
func (p *Pool) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, *r)
	}
	return out
}

// Restore overlays previously saved health metadata onto matching records.
func (p *Pool) Restore(saved []Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byAddr := make(map[string]Record, len(saved))
	for _, r := range saved {
		byAddr[r.Address] = r
	}
	for _, r := range p.records {
		if prev, ok := byAddr[r.Address]; ok {
			r.Failures = prev.Failures
			r.BlacklistedUntil = prev.BlacklistedUntil
			r.LastUsed = prev.LastUsed
		}
	}
}

func (p *Pool) find(addr string) *Record {
	for _, r := range p.records {
		if r.Address == addr {
			return r
		}
	}
	return nil
}
