package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"shelfsync/internal/scrape"
)

// Ledger records per-entity last-synced timestamps in the sync_records
// table, keyed by (kind, external_id).
type Ledger struct {
	pool querier
}

// NewLedger constructs a ledger over an existing pool.
func NewLedger(pool querier) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Ledger{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// LastSynced implements scrape.Ledger.
func (l *Ledger) LastSynced(ctx context.Context, kind scrape.EntityKind, id string) (time.Time, bool, error) {
	const query = `SELECT last_synced FROM sync_records WHERE kind = $1 AND external_id = $2`

	var at time.Time
	err := l.pool.QueryRow(ctx, query, string(kind), id).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select sync record: %w", err)
	}
	return at, true, nil
}

// MarkSynced implements scrape.Ledger. Repeated marks for the same entity
// update the timestamp and source in place.
func (l *Ledger) MarkSynced(ctx context.Context, rec scrape.SyncRecord) error {
	const query = `
INSERT INTO sync_records (kind, external_id, last_synced, source)
VALUES ($1, $2, $3, $4)
ON CONFLICT (kind, external_id)
DO UPDATE SET last_synced = EXCLUDED.last_synced, source = EXCLUDED.source`

	if _, err := l.pool.Exec(ctx, query, string(rec.Kind), rec.ID, rec.LastSynced, rec.Source); err != nil {
		return fmt.Errorf("upsert sync record: %w", err)
	}
	return nil
}

// StaleIDs lists identifiers of one kind whose last sync predates olderThan,
// oldest first. A non-empty source narrows the selection to entities
// discovered that way; limit <= 0 means no limit.
func (l *Ledger) StaleIDs(ctx context.Context, kind scrape.EntityKind, olderThan time.Time, source string, limit int) ([]string, error) {
	query := `SELECT external_id FROM sync_records WHERE kind = $1 AND last_synced < $2`
	args := []any{string(kind), olderThan}
	if source != "" {
		query += fmt.Sprintf(` AND source = $%d`, len(args)+1)
		args = append(args, source)
	}
	query += ` ORDER BY last_synced ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stale ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale ids: %w", err)
	}
	return ids, nil
}
