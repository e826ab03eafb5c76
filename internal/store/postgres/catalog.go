package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"shelfsync/internal/scrape"
)

// Catalog upserts accepted drafts into the entities table, replacing the
// entity's outbound relations on every write. Upserts are idempotent: the
// same draft twice leaves the same rows.
type Catalog struct {
	pool querier
}

// NewCatalog constructs a catalog over an existing pool.
func NewCatalog(pool querier) (*Catalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Catalog{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

const upsertEntityQuery = `
INSERT INTO entities (
	kind,
	external_id,
	title,
	name,
	work_id,
	description,
	bio,
	language,
	pages,
	isbn,
	rating,
	rating_count,
	published_date,
	published_state,
	image_url,
	genres
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (kind, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	name = EXCLUDED.name,
	work_id = EXCLUDED.work_id,
	description = EXCLUDED.description,
	bio = EXCLUDED.bio,
	language = EXCLUDED.language,
	pages = EXCLUDED.pages,
	isbn = EXCLUDED.isbn,
	rating = EXCLUDED.rating,
	rating_count = EXCLUDED.rating_count,
	published_date = EXCLUDED.published_date,
	published_state = EXCLUDED.published_state,
	image_url = EXCLUDED.image_url,
	genres = EXCLUDED.genres,
	updated_at = now()
RETURNING id`

const deleteLinksQuery = `DELETE FROM entity_links WHERE entity_id = $1`

const insertLinkQuery = `
INSERT INTO entity_links (entity_id, link_kind, external_id, name, position, detail)
VALUES ($1,$2,$3,$4,$5,$6)`

// Upsert implements scrape.Persister.
func (c *Catalog) Upsert(ctx context.Context, draft scrape.Draft) (int64, error) {
	genres, err := json.Marshal(draft.Genres)
	if err != nil {
		return 0, fmt.Errorf("marshal genres: %w", err)
	}

	var entityID int64
	err = c.pool.QueryRow(ctx, upsertEntityQuery,
		string(draft.Key.Kind),
		draft.Key.ID,
		draft.Title,
		draft.Name,
		draft.WorkID,
		draft.Description,
		draft.Bio,
		draft.Language,
		draft.Pages,
		draft.ISBN,
		draft.Rating,
		draft.RatingCount,
		draft.PublishedDate,
		draft.PublishedState,
		draft.ImageURL,
		genres,
	).Scan(&entityID)
	if err != nil {
		return 0, fmt.Errorf("upsert entity: %w", err)
	}

	if _, err := c.pool.Exec(ctx, deleteLinksQuery, entityID); err != nil {
		return 0, fmt.Errorf("clear entity links: %w", err)
	}

	pos := 0
	insert := func(linkKind, externalID, name string, detail any) error {
		payload, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal link detail: %w", err)
		}
		if _, err := c.pool.Exec(ctx, insertLinkQuery, entityID, linkKind, externalID, name, pos, payload); err != nil {
			return fmt.Errorf("insert %s link: %w", linkKind, err)
		}
		pos++
		return nil
	}

	for _, a := range draft.Authors {
		if err := insert("author", a.ID, a.Name, map[string]string{"role": a.Role}); err != nil {
			return 0, err
		}
	}
	for _, s := range draft.Series {
		if err := insert("series", s.ID, s.Name, map[string]string{"order": s.Order}); err != nil {
			return 0, err
		}
	}
	for _, b := range draft.Books {
		if err := insert("book", b.ID, b.Title, b); err != nil {
			return 0, err
		}
	}

	return entityID, nil
}
