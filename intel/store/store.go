// Package store provides the keyed persistence layer for niche
// intelligence bundles, behind a backend-agnostic interface.
//
// Three backends ship: an in-process map (default), SQLite (durable,
// single node), and Redis (shared across nodes). All implement the same
// get-or-create contract: the intel service is the sole writer, alias keys
// are first-writer-wins, and freshness is the service's concern — the
// store keeps whatever it is given.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/adlens/adlens/insight"
	"github.com/adlens/adlens/normalize"
)

// ErrNotFound is returned by Get for unknown keys (primary or alias).
var ErrNotFound = errors.New("store: intelligence not found")

// NicheIntelligence is the full intelligence bundle for one
// (niche, location) market. Owned by the intel service; consumers must
// treat it as read-only.
type NicheIntelligence struct {
	Niche       string                      `json:"niche"`
	Location    string                      `json:"location"`
	Keywords    []string                    `json:"keywords"`
	LastUpdated time.Time                   `json:"last_updated"`
	Ads         []normalize.AdRecord        `json:"ads"`
	Insights    insight.Insights            `json:"insights"`
	Competitors []insight.CompetitorProfile `json:"competitors"`
}

// Key builds the primary cache key for a (niche, location) pair.
func Key(niche, location string) string {
	return niche + "_" + location
}

// Stats is read-only cache introspection.
type Stats struct {
	NichesTracked     int       `json:"niches_tracked"`
	TotalAdsCollected int       `json:"total_ads_collected"`
	OldestData        time.Time `json:"oldest_data,omitzero"`
	NewestData        time.Time `json:"newest_data,omitzero"`
}

// Store is the injected cache backend.
type Store interface {
	// Get returns the bundle under key, resolving alias keys to their
	// target. ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (*NicheIntelligence, error)

	// Set stores the bundle under its primary key, replacing any
	// previous entry wholesale.
	Set(ctx context.Context, key string, intel *NicheIntelligence) error

	// SetAlias points alias at the bundle stored under target. A no-op
	// when the alias is already populated (first writer wins).
	SetAlias(ctx context.Context, alias, target string) error

	// Exists reports whether key resolves (primary or alias).
	Exists(ctx context.Context, key string) (bool, error)

	// Stats summarises tracked niches; aliases are not counted.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
