// Package normalize converts raw harvested ads into structured AdRecords:
// run-start date parsing, days-running computation, and derived tags
// (emotional triggers, offer type, price point, urgency, social proof)
// via independent pattern-matching passes.
package normalize

import (
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/adlens/adlens/harvest"
	"github.com/adlens/adlens/idgen"
)

// AdRecord is one structured, immutable competitor ad.
type AdRecord struct {
	ID          string    `json:"id"`
	Advertiser  string    `json:"advertiser"`
	Headline    string    `json:"headline"`
	BodyText    string    `json:"body_text"`
	CTA         string    `json:"cta"`
	StartDate   time.Time `json:"start_date"`
	Active      bool      `json:"active"`
	DaysRunning int       `json:"days_running"`
	MediaType   string    `json:"media_type"`
	Keyword     string    `json:"keyword"`

	EmotionalTriggers []string `json:"emotional_triggers,omitempty"`
	OfferType         string   `json:"offer_type"`
	PricePoint        string   `json:"price_point,omitempty"`
	UrgencyType       string   `json:"urgency_type,omitempty"`
	SocialProof       string   `json:"social_proof,omitempty"`
}

// Normalizer turns RawAds into AdRecords.
type Normalizer struct {
	newID     idgen.Generator
	now       func() time.Time
	sanitizer *bluemonday.Policy
	mdConv    *converter.Converter
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithIDGenerator overrides the record ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(n *Normalizer) { n.newID = gen }
}

// WithClock overrides the clock, for deterministic daysRunning in tests.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		newID:     idgen.Ad,
		now:       time.Now,
		sanitizer: bluemonday.UGCPolicy(),
		mdConv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize converts one raw ad. Returns nil when both advertiser and body
// are empty — garbage is dropped, not stored.
func (n *Normalizer) Normalize(raw harvest.RawAd, keyword string) *AdRecord {
	body := strings.TrimSpace(raw.BodyText)
	if body == "" && raw.BodyHTML != "" {
		body = n.bodyFromHTML(raw.BodyHTML)
	}

	advertiser := strings.TrimSpace(raw.Advertiser)
	if advertiser == "" && body == "" {
		return nil
	}

	now := n.now()
	start, ok := parseStartDate(raw.StartedText, now)
	if !ok {
		// Unparseable date: conservative default. daysRunning 0 never
		// fakes a winner signal.
		start = now
	}
	days := int(now.Sub(start).Hours() / 24)
	if days < 0 {
		days = 0
	}

	headline := strings.TrimSpace(raw.Headline)
	if headline == "" {
		headline = firstLine(body)
	}

	// Independent, order-insensitive tagging passes over the combined text.
	text := strings.ToLower(headline + " " + body + " " + raw.CTA)

	return &AdRecord{
		ID:                n.newID(),
		Advertiser:        advertiser,
		Headline:          headline,
		BodyText:          body,
		CTA:               strings.TrimSpace(raw.CTA),
		StartDate:         start,
		Active:            true,
		DaysRunning:       days,
		MediaType:         raw.MediaType,
		Keyword:           keyword,
		EmotionalTriggers: detectTriggers(text),
		OfferType:         detectOfferType(text),
		PricePoint:        detectPricePoint(text),
		UrgencyType:       detectUrgencyType(text),
		SocialProof:       detectSocialProof(text),
	}
}

// NormalizeAll converts a batch, dropping nil records.
func (n *Normalizer) NormalizeAll(raws []harvest.RawAd, keyword string) []AdRecord {
	records := make([]AdRecord, 0, len(raws))
	for _, raw := range raws {
		if rec := n.Normalize(raw, keyword); rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// bodyFromHTML sanitizes portal creative HTML and renders it as plain
// markdown text.
func (n *Normalizer) bodyFromHTML(html string) string {
	clean := n.sanitizer.Sanitize(html)
	md, err := n.mdConv.ConvertString(clean)
	if err != nil {
		// Fall back to the sanitizer's tag-stripped output.
		return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(html))
	}
	return strings.TrimSpace(md)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}
