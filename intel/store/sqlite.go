package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Schema is the intelligence cache schema. The bundle body is stored as
// JSON — the cache is a keyed blob store with TTL semantics enforced by
// the service, not a relational model of ads.
const Schema = `
CREATE TABLE IF NOT EXISTS niches (
    key          TEXT PRIMARY KEY,
    niche        TEXT NOT NULL,
    location     TEXT NOT NULL,
    ad_count     INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL,
    body         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_niches_updated ON niches(last_updated);

CREATE TABLE IF NOT EXISTS aliases (
    alias  TEXT PRIMARY KEY,
    target TEXT NOT NULL REFERENCES niches(key) ON DELETE CASCADE
);
`

// SQLite is the durable single-node backend. Open the database with
// dbopen so the WAL/busy-timeout pragmas are in place.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an already-opened database and applies the schema. The
// store takes ownership of the handle; Close releases it.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (*NicheIntelligence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT body FROM niches WHERE key = ?
		UNION ALL
		SELECT n.body FROM niches n JOIN aliases a ON a.target = n.key WHERE a.alias = ?
		LIMIT 1`, key, key)

	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}

	var intel NicheIntelligence
	if err := json.Unmarshal([]byte(body), &intel); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return &intel, nil
}

func (s *SQLite) Set(ctx context.Context, key string, intel *NicheIntelligence) error {
	body, err := json.Marshal(intel)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO niches (key, niche, location, ad_count, last_updated, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			niche = excluded.niche,
			location = excluded.location,
			ad_count = excluded.ad_count,
			last_updated = excluded.last_updated,
			body = excluded.body`,
		key, intel.Niche, intel.Location, len(intel.Ads),
		intel.LastUpdated.UnixMilli(), string(body))
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) SetAlias(ctx context.Context, alias, target string) error {
	// Primary entries block the alias slot the same way a prior alias does.
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM niches WHERE key = ?`, alias).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: alias check %s: %w", alias, err)
	}
	if exists > 0 {
		return nil
	}

	// INSERT OR IGNORE = first writer wins.
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO aliases (alias, target) VALUES (?, ?)`, alias, target)
	if err != nil {
		return fmt.Errorf("store: set alias %s: %w", alias, err)
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT key FROM niches WHERE key = ?
			UNION ALL
			SELECT alias FROM aliases WHERE alias = ?
		)`, key, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(ad_count), 0), MIN(last_updated), MAX(last_updated)
		FROM niches`).Scan(&st.NichesTracked, &st.TotalAdsCollected, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	if oldest.Valid {
		st.OldestData = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		st.NewestData = time.UnixMilli(newest.Int64)
	}
	return st, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
