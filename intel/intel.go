// Package intel is the engine orchestrator: it resolves a target URL to a
// niche, serves cached intelligence while fresh, and otherwise runs the
// harvest→normalize→aggregate pipeline and stores the result.
//
// The Service is the sole writer of cache state. Consumers receive the
// stored bundle and must treat it as read-only.
package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adlens/adlens/harvest"
	"github.com/adlens/adlens/insight"
	"github.com/adlens/adlens/intel/store"
	"github.com/adlens/adlens/niche"
	"github.com/adlens/adlens/normalize"
)

// Stage labels reported at pipeline checkpoints.
const (
	StageClassify  = "classifying niche"
	StageHarvest   = "harvesting competitor ads"
	StageNormalize = "structuring ad records"
	StageAggregate = "computing insights"
	StageStore     = "caching intelligence"
)

// Options control one GetOrCreate call.
type Options struct {
	// ForceRefresh bypasses the freshness check and recollects.
	ForceRefresh bool
	// QuickScan searches only the primary keyword.
	QuickScan bool
	// OnStage is called at each pipeline checkpoint. May be nil.
	OnStage func(stage string)
	// OnHarvest receives per-keyword harvest progress. May be nil.
	OnHarvest harvest.Progress
}

// Result is the outcome of GetOrCreate.
type Result struct {
	Cached          bool                     `json:"cached"`
	Intelligence    *store.NicheIntelligence `json:"intelligence"`
	InstantInsights []string                 `json:"instant_insights"`
}

// Service coordinates classification, harvesting, aggregation and the
// cache store.
type Service struct {
	store      store.Store
	harvester  *harvest.Harvester
	normalizer *normalize.Normalizer
	config     Config
	logger     *slog.Logger
	now        func() time.Time

	// writeMu serializes the collect-and-store phase so near-simultaneous
	// misses for related aliases cannot interleave their writes.
	writeMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock for freshness tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNormalizer overrides the normalizer (tests pin its clock).
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// New creates a Service on the given store and scraper.
func New(st store.Store, scraper harvest.Scraper, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      st,
		harvester:  harvest.New(scraper, cfg.Harvest, logger),
		normalizer: normalize.New(),
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetOrCreate returns the niche intelligence for url, recollecting when
// the cached bundle is missing, stale, or a refresh is forced. A cache
// miss takes seconds to minutes; callers wanting asynchrony go through
// the job queue instead.
func (s *Service) GetOrCreate(ctx context.Context, url string, opts Options) (Result, error) {
	stage := func(name string) {
		if opts.OnStage != nil {
			opts.OnStage(name)
		}
	}

	stage(StageClassify)
	profile := niche.Classify(url)
	key := store.Key(profile.Niche, profile.Location)
	log := s.logger.With("niche", profile.Niche, "location", profile.Location)

	if !opts.ForceRefresh {
		existing, err := s.store.Get(ctx, key)
		switch {
		case err == nil && s.fresh(existing):
			log.Debug("intel: cache hit")
			return Result{
				Cached:          true,
				Intelligence:    existing,
				InstantInsights: instantInsights(existing),
			}, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return Result{}, fmt.Errorf("intel: cache lookup: %w", err)
		}
	}

	stage(StageHarvest)
	raws := s.harvester.Harvest(ctx, profile, opts.QuickScan, opts.OnHarvest)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	stage(StageNormalize)
	records := make([]normalize.AdRecord, 0, len(raws))
	for _, raw := range raws {
		if rec := s.normalizer.Normalize(raw, raw.Keyword); rec != nil {
			records = append(records, *rec)
		}
	}

	// Cancellation checkpoint before aggregation.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	stage(StageAggregate)
	bundle := &store.NicheIntelligence{
		Niche:       profile.Niche,
		Location:    profile.Location,
		Keywords:    profile.Keywords,
		LastUpdated: s.now(),
		Ads:         records,
		Insights:    insight.Aggregate(records),
		Competitors: insight.GroupCompetitors(records),
	}
	if len(records) == 0 {
		// Thin result: still cached so a portal outage doesn't turn every
		// repeat request into another hammering run.
		log.Warn("intel: empty harvest, caching thin result")
	}

	stage(StageStore)
	if err := s.storeBundle(ctx, key, profile, bundle); err != nil {
		return Result{}, err
	}

	log.Info("intel: collected", "ads", len(records), "competitors", len(bundle.Competitors))
	return Result{
		Cached:          false,
		Intelligence:    bundle,
		InstantInsights: instantInsights(bundle),
	}, nil
}

// storeBundle writes the primary entry then its keyword aliases under one
// lock. Alias failures degrade to warnings: the primary entry is what
// correctness depends on.
func (s *Service) storeBundle(ctx context.Context, key string, profile niche.Profile, bundle *store.NicheIntelligence) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Set(ctx, key, bundle); err != nil {
		return fmt.Errorf("intel: store bundle: %w", err)
	}
	for _, kw := range profile.Keywords {
		alias := store.Key(kw, profile.Location)
		if alias == key {
			continue
		}
		if err := s.store.SetAlias(ctx, alias, key); err != nil {
			s.logger.Warn("intel: set alias", "alias", alias, "error", err)
		}
	}
	return nil
}

func (s *Service) fresh(intel *store.NicheIntelligence) bool {
	return s.now().Sub(intel.LastUpdated) < s.config.Freshness
}

// Stats returns read-only cache introspection.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx)
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}
