// Package memory provides in-memory ledger and catalog implementations,
// used when no database is configured and by wiring tests.
package memory

import (
	"context"
	"sync"
	"time"

	"shelfsync/internal/scrape"
)

// Ledger keeps sync records in a map. Safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]scrape.SyncRecord
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]scrape.SyncRecord)}
}

func ledgerKey(kind scrape.EntityKind, id string) string {
	return string(kind) + "/" + id
}

// LastSynced implements scrape.Ledger.
func (l *Ledger) LastSynced(_ context.Context, kind scrape.EntityKind, id string) (time.Time, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[ledgerKey(kind, id)]
	return rec.LastSynced, ok, nil
}

// MarkSynced implements scrape.Ledger.
func (l *Ledger) MarkSynced(_ context.Context, rec scrape.SyncRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[ledgerKey(rec.Kind, rec.ID)] = rec
	return nil
}

// Len reports how many entities have been marked.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Catalog keeps upserted drafts in a map keyed by (kind, external id).
type Catalog struct {
	mu     sync.Mutex
	nextID int64
	ids    map[string]int64
	drafts map[int64]scrape.Draft
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		ids:    make(map[string]int64),
		drafts: make(map[int64]scrape.Draft),
	}
}

// Upsert implements scrape.Persister.
func (c *Catalog) Upsert(_ context.Context, draft scrape.Draft) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ledgerKey(draft.Key.Kind, draft.Key.ID)
	id, ok := c.ids[key]
	if !ok {
		c.nextID++
		id = c.nextID
		c.ids[key] = id
	}
	c.drafts[id] = draft
	return id, nil
}

// Get returns the stored draft for an entity id.
func (c *Catalog) Get(id int64) (scrape.Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draft, ok := c.drafts[id]
	return draft, ok
}

// Len reports how many entities are stored.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.drafts)
}
