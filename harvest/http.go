package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPConfig configures the no-browser fallback scraper.
type HTTPConfig struct {
	// URLTemplate with {query} and {country} placeholders.
	// Default: DefaultPortalTemplate.
	URLTemplate string
	// Timeout per request. Default: 30s.
	Timeout time.Duration
	// UserAgent sent with requests. Default: a desktop Chrome UA.
	UserAgent string
	// MaxAds caps extraction per search. Default: 20.
	MaxAds int
}

func (c *HTTPConfig) defaults() {
	if c.URLTemplate == "" {
		c.URLTemplate = DefaultPortalTemplate
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36"
	}
	if c.MaxAds <= 0 {
		c.MaxAds = 20
	}
}

// HTTPScraper fetches the portal search page over plain HTTP and parses the
// server-rendered HTML with goquery. It sees far fewer ads than the browser
// scraper (the portal renders most cards client-side) but works in
// environments without Chrome. Stateless: Open returns a session sharing
// one http.Client.
type HTTPScraper struct {
	config HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPScraper creates the HTTP fallback scraper.
func NewHTTPScraper(cfg HTTPConfig, logger *slog.Logger) *HTTPScraper {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPScraper{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Open returns a session. There is no per-session state to acquire for
// plain HTTP, but the Session contract keeps the two scrapers swappable.
func (h *HTTPScraper) Open(ctx context.Context) (Session, error) {
	return &httpSession{scraper: h}, nil
}

type httpSession struct {
	scraper *HTTPScraper
}

func (s *httpSession) Close() error { return nil }

func (s *httpSession) Search(ctx context.Context, keyword, location string) ([]RawAd, error) {
	cfg := s.scraper.config
	searchURL := buildSearchURL(cfg.URLTemplate, keyword, location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http search: build request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := s.scraper.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http search %q: %w", keyword, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http search %q: unexpected status %d", keyword, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http search %q: parse: %w", keyword, err)
	}

	var cards *goquery.Selection
	for _, sel := range adContainerSelectors {
		if m := doc.Find(sel); m.Length() > 0 {
			cards = m
			break
		}
	}
	if cards == nil {
		return nil, nil
	}

	var ads []RawAd
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(ads) >= cfg.MaxAds {
			return false
		}
		if ad, ok := extractSelection(card); ok {
			ads = append(ads, ad)
		}
		return true
	})
	return ads, nil
}

// extractSelection mirrors the browser card extraction on a goquery node.
func extractSelection(card *goquery.Selection) (RawAd, bool) {
	fullText := strings.TrimSpace(card.Text())

	ad := RawAd{
		Advertiser:  selectionText(card, advertiserSelectors),
		CTA:         selectionText(card, ctaSelectors),
		StartedText: extractStartedText(fullText),
	}

	for _, sel := range bodySelectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if txt := strings.TrimSpace(el.Text()); txt != "" {
			ad.BodyText = txt
			if html, err := goquery.OuterHtml(el); err == nil {
				ad.BodyHTML = html
			}
			break
		}
	}
	if ad.BodyText == "" {
		ad.BodyText = fullText
	}
	ad.Headline = firstLine(ad.BodyText)

	switch {
	case card.Find("video").Length() > 0:
		ad.MediaType = "video"
	case card.Find("img").Length() > 2:
		ad.MediaType = "carousel"
	case card.Find("img").Length() >= 1:
		ad.MediaType = "image"
	}

	for _, sel := range landingSelectors {
		if href, ok := card.Find(sel).First().Attr("href"); ok && href != "" {
			ad.LandingURL = href
			break
		}
	}

	return ad, ad.Advertiser != "" || ad.BodyText != ""
}

func selectionText(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if txt := strings.TrimSpace(card.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}
