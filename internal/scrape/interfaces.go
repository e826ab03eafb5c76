package scrape

import (
	"context"
	"time"
)

// Fetcher retrieves the raw page behind a source key.
type Fetcher interface {
	Fetch(ctx context.Context, key SourceKey, mode FetchMode) (FetchResult, error)
}

// PageCache stores raw response bodies keyed by source key. Entries are
// written once per key; a refetch overwrites the entry atomically.
type PageCache interface {
	Get(key SourceKey) ([]byte, bool, error)
	Put(key SourceKey, body []byte) error
}

// ProxyOutcome is the fetcher's verdict on one request through a proxy.
type ProxyOutcome int

// Proxy outcomes reported back to the pool.
const (
	ProxySuccess ProxyOutcome = iota
	ProxyFailure
	// ProxyBlocked means the source explicitly denied the request (403/429);
	// the pool penalizes this harder than a plain transport failure.
	ProxyBlocked
)

// ProxyPool selects one egress point per outgoing request and tracks health.
type ProxyPool interface {
	Acquire() (string, error)
	Report(addr string, outcome ProxyOutcome)
}

// RateLimiter serializes outbound requests per host, independent of which
// proxy carries them.
type RateLimiter interface {
	Wait(ctx context.Context, host string) error
}

// Parser maps a raw page to a draft. Parsers perform no I/O and hold no
// shared state.
type Parser interface {
	Parse(key SourceKey, body []byte) (Draft, error)
}

// Ledger is the external record of per-entity last-synced timestamps.
type Ledger interface {
	LastSynced(ctx context.Context, kind EntityKind, id string) (time.Time, bool, error)
	MarkSynced(ctx context.Context, rec SyncRecord) error
}

// Persister upserts accepted drafts into the catalog. Must be idempotent
// under repeated identical drafts.
type Persister interface {
	Upsert(ctx context.Context, draft Draft) (int64, error)
}

// Clock returns the current time (substitutable in tests).
type Clock interface {
	Now() time.Time
}
