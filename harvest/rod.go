package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"

	"github.com/adlens/adlens/harvest/internal/browser"
)

// DefaultPortalTemplate is the ad-transparency portal search URL. {query}
// and {country} are substituted per search.
const DefaultPortalTemplate = "https://www.facebook.com/ads/library/?active_status=active&ad_type=all&country={country}&q={query}&search_type=keyword_unordered&media_type=all"

// RodConfig configures the browser-driven scraper.
type RodConfig struct {
	// URLTemplate is the portal search URL with {query} and {country}
	// placeholders. Default: DefaultPortalTemplate.
	URLTemplate string
	// Browser configures Chrome lifecycle for each session.
	Browser browser.Config
	// MaxAds caps extraction per search. Default: 20.
	MaxAds int
}

func (c *RodConfig) defaults() {
	if c.URLTemplate == "" {
		c.URLTemplate = DefaultPortalTemplate
	}
	if c.MaxAds <= 0 {
		c.MaxAds = 20
	}
}

// RodScraper drives a real Chrome via go-rod with stealth fingerprinting.
// Each Open launches a fresh Chrome owned by that session alone.
type RodScraper struct {
	config RodConfig
	logger *slog.Logger
}

// NewRodScraper creates the production scraper.
func NewRodScraper(cfg RodConfig, logger *slog.Logger) *RodScraper {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Browser.Logger = logger
	return &RodScraper{config: cfg, logger: logger}
}

// Open launches a dedicated Chrome for one harvest.
func (r *RodScraper) Open(ctx context.Context) (Session, error) {
	sess, err := browser.Open(ctx, r.config.Browser)
	if err != nil {
		return nil, err
	}
	return &rodSession{cfg: r.config, sess: sess, logger: r.logger}, nil
}

type rodSession struct {
	cfg    RodConfig
	sess   *browser.Session
	logger *slog.Logger
}

func (s *rodSession) Close() error {
	return s.sess.Close()
}

// Search opens the portal search page for one keyword and extracts ad cards.
func (s *rodSession) Search(ctx context.Context, keyword, location string) ([]RawAd, error) {
	searchURL := buildSearchURL(s.cfg.URLTemplate, keyword, location)

	page, err := s.sess.OpenPage(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	defer page.Close()

	cards := s.findCards(ctx, page)
	if len(cards) == 0 {
		s.logger.Debug("rod: no ad cards matched", "keyword", keyword)
		return nil, nil
	}
	if len(cards) > s.cfg.MaxAds {
		cards = cards[:s.cfg.MaxAds]
	}

	ads := make([]RawAd, 0, len(cards))
	for _, card := range cards {
		ad, ok := s.extractCard(card)
		if ok {
			ads = append(ads, ad)
		}
	}
	return ads, nil
}

// findCards tries each container selector in priority order and returns the
// first non-empty match set.
func (s *rodSession) findCards(ctx context.Context, page *rod.Page) rod.Elements {
	for _, sel := range adContainerSelectors {
		els, err := page.Context(ctx).Elements(sel)
		if err == nil && len(els) > 0 {
			return els
		}
	}
	return nil
}

// extractCard pulls all RawAd fields from one card element. First-matching
// selector wins per field; missing fields stay empty and are the
// normalizer's problem.
func (s *rodSession) extractCard(card *rod.Element) (RawAd, bool) {
	fullText, err := card.Text()
	if err != nil {
		return RawAd{}, false
	}

	ad := RawAd{
		Advertiser:  elementText(card, advertiserSelectors),
		CTA:         elementText(card, ctaSelectors),
		StartedText: extractStartedText(fullText),
		MediaType:   detectMediaType(card),
	}

	// Body: prefer a dedicated creative element (keeping its HTML for the
	// normalizer), fall back to the card's whole text.
	for _, sel := range bodySelectors {
		el, err := card.Element(sel)
		if err != nil {
			continue
		}
		if txt, err := el.Text(); err == nil && strings.TrimSpace(txt) != "" {
			ad.BodyText = strings.TrimSpace(txt)
			if html, err := el.HTML(); err == nil {
				ad.BodyHTML = html
			}
			break
		}
	}
	if ad.BodyText == "" {
		ad.BodyText = strings.TrimSpace(fullText)
	}
	ad.Headline = firstLine(ad.BodyText)

	for _, sel := range landingSelectors {
		el, err := card.Element(sel)
		if err != nil {
			continue
		}
		if href, err := el.Attribute("href"); err == nil && href != nil {
			ad.LandingURL = *href
			break
		}
	}

	return ad, ad.Advertiser != "" || ad.BodyText != ""
}

func elementText(card *rod.Element, selectors []string) string {
	for _, sel := range selectors {
		el, err := card.Element(sel)
		if err != nil {
			continue
		}
		txt, err := el.Text()
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			return t
		}
	}
	return ""
}

func detectMediaType(card *rod.Element) string {
	if has, _, err := card.Has("video"); err == nil && has {
		return "video"
	}
	imgs, err := card.Elements("img")
	if err != nil {
		return ""
	}
	switch {
	case len(imgs) > 2:
		return "carousel"
	case len(imgs) >= 1:
		return "image"
	}
	return ""
}

func buildSearchURL(template, keyword, location string) string {
	u := strings.ReplaceAll(template, "{query}", url.QueryEscape(keyword))
	return strings.ReplaceAll(u, "{country}", strings.ToUpper(location))
}
