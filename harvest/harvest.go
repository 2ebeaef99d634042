// Package harvest collects raw competitor ads from a public ad-transparency
// portal, one browser search per niche keyword.
//
// The browser session is a scoped resource: opened once per Harvest call and
// closed on every exit path. Per-keyword failures are logged and skipped —
// a harvest always returns whatever it managed to collect.
package harvest

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/adlens/adlens/niche"
)

// RawAd is one ad-like element extracted from a rendered portal page,
// before normalization.
type RawAd struct {
	Advertiser  string `json:"advertiser"`
	Headline    string `json:"headline"`
	BodyText    string `json:"body_text"`
	BodyHTML    string `json:"body_html,omitempty"`
	CTA         string `json:"cta"`
	StartedText string `json:"started_text"` // free-text run-start date as shown on the page
	MediaType   string `json:"media_type"`   // image | video | carousel | ""
	LandingURL  string `json:"landing_url,omitempty"`
	Keyword     string `json:"keyword"` // stamped by the harvester with the search that found the ad
}

// Scraper opens portal sessions. The production implementation drives a
// real browser; tests return canned fixtures.
type Scraper interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one open portal session. Never shared across harvests.
type Session interface {
	// Search runs one keyword search and returns extracted ads.
	Search(ctx context.Context, keyword, location string) ([]RawAd, error)
	Close() error
}

// Config configures harvesting behaviour.
type Config struct {
	// MaxAdsPerKeyword caps extraction per keyword search. Default: 20.
	MaxAdsPerKeyword int
	// SearchDelay is the fixed pause between keyword searches. Default: 2s.
	SearchDelay time.Duration
	// DelayJitter adds up to this much random extra delay. Default: 1s.
	DelayJitter time.Duration
	// SearchTimeout bounds one keyword search. Default: 45s.
	SearchTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxAdsPerKeyword <= 0 {
		c.MaxAdsPerKeyword = 20
	}
	if c.SearchDelay <= 0 {
		c.SearchDelay = 2 * time.Second
	}
	if c.DelayJitter < 0 {
		c.DelayJitter = 0
	} else if c.DelayJitter == 0 {
		c.DelayJitter = time.Second
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 45 * time.Second
	}
}

// Progress reports per-keyword harvest advancement. done is the number of
// keyword searches finished (failed ones included), collected the running
// ad total.
type Progress func(done, total, collected int)

// Harvester runs keyword searches against a portal via a Scraper.
type Harvester struct {
	scraper Scraper
	config  Config
	logger  *slog.Logger
}

// New creates a Harvester.
func New(scraper Scraper, cfg Config, logger *slog.Logger) *Harvester {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{scraper: scraper, config: cfg, logger: logger}
}

// Harvest searches the portal for every keyword of the profile (only the
// primary one when quickScan is set) and returns all raw ads collected.
// It never returns an error: a session that cannot open, a keyword that
// times out, or a page that extracts nothing all degrade to a smaller —
// possibly empty — result. onProgress may be nil.
func (h *Harvester) Harvest(ctx context.Context, profile niche.Profile, quickScan bool, onProgress Progress) []RawAd {
	keywords := profile.Keywords
	if quickScan && len(keywords) > 1 {
		keywords = keywords[:1]
	}
	if len(keywords) == 0 {
		return nil
	}

	session, err := h.scraper.Open(ctx)
	if err != nil {
		h.logger.Error("harvest: open session", "niche", profile.Niche, "error", err)
		return nil
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			h.logger.Warn("harvest: close session", "error", cerr)
		}
	}()

	var collected []RawAd
	for i, kw := range keywords {
		// Cancellation checkpoint before each keyword search.
		if ctx.Err() != nil {
			h.logger.Info("harvest: cancelled", "niche", profile.Niche, "done", i, "total", len(keywords))
			return collected
		}

		if i > 0 {
			if !h.sleepBetweenSearches(ctx) {
				return collected
			}
		}

		searchCtx, cancel := context.WithTimeout(ctx, h.config.SearchTimeout)
		ads, err := session.Search(searchCtx, kw, profile.Location)
		cancel()
		if err != nil {
			// Per-keyword failure: log, skip, keep going.
			h.logger.Warn("harvest: keyword failed", "keyword", kw, "error", err)
			ads = nil
		}

		if len(ads) > h.config.MaxAdsPerKeyword {
			ads = ads[:h.config.MaxAdsPerKeyword]
		}
		for i := range ads {
			ads[i].Keyword = kw
		}
		collected = append(collected, ads...)

		h.logger.Debug("harvest: keyword done", "keyword", kw, "ads", len(ads), "total", len(collected))
		if onProgress != nil {
			onProgress(i+1, len(keywords), len(collected))
		}
	}

	return collected
}

// sleepBetweenSearches pauses SearchDelay plus jitter. Returns false when
// the context was cancelled during the pause.
func (h *Harvester) sleepBetweenSearches(ctx context.Context) bool {
	delay := h.config.SearchDelay
	if h.config.DelayJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(h.config.DelayJitter)))
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
