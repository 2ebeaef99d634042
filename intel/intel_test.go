package intel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adlens/adlens/harvest"
	"github.com/adlens/adlens/intel/store"
	"github.com/adlens/adlens/normalize"
)

var testNow = time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

// fakeScraper serves canned ads and counts how many sessions were opened,
// which is how the tests observe cache hits versus live collections.
type fakeScraper struct {
	ads   []harvest.RawAd
	opens int
}

func (f *fakeScraper) Open(_ context.Context) (harvest.Session, error) {
	f.opens++
	return &fakeSession{ads: f.ads}, nil
}

type fakeSession struct {
	ads []harvest.RawAd
}

func (s *fakeSession) Search(_ context.Context, _, _ string) ([]harvest.RawAd, error) {
	return s.ads, nil
}

func (s *fakeSession) Close() error { return nil }

func cannedAds() []harvest.RawAd {
	return []harvest.RawAd{
		{
			Advertiser:  "Bright Smile Dental",
			Headline:    "Straighter Teeth In 6 Months",
			BodyText:    "Book your free consultation today. Limited spots available.",
			CTA:         "Book Now",
			StartedText: "Started running on Jun 1, 2026",
			MediaType:   "image",
		},
		{
			Advertiser:  "City Orthodontics",
			Headline:    "Invisalign From $99/mo",
			BodyText:    "Join 5,000 happy patients. Money back guarantee.",
			CTA:         "Learn More",
			StartedText: "Started running on Aug 1, 2026",
			MediaType:   "video",
		},
	}
}

func newTestService(scraper harvest.Scraper, now func() time.Time) *Service {
	cfg := Config{
		Harvest: harvest.Config{SearchDelay: time.Millisecond, DelayJitter: -1},
	}
	return New(store.NewMemory(), scraper, cfg, nil,
		WithClock(now),
		WithNormalizer(normalize.New(normalize.WithClock(func() time.Time { return testNow }))),
	)
}

func TestService_CollectsThenServesCache(t *testing.T) {
	// WHAT: the first request collects live, the second within the
	// freshness window is answered from the cache without a new session.
	fake := &fakeScraper{ads: cannedAds()}
	svc := newTestService(fake, func() time.Time { return testNow })

	first, err := svc.GetOrCreate(context.Background(), "https://brightsmile-dental.com", Options{QuickScan: true})
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	if first.Cached {
		t.Error("first call should not be served from cache")
	}
	if got := len(first.Intelligence.Ads); got != 2 {
		t.Fatalf("ads = %d, want 2", got)
	}
	if first.Intelligence.Niche != "dental" {
		t.Errorf("niche = %q, want dental", first.Intelligence.Niche)
	}
	if len(first.InstantInsights) == 0 {
		t.Error("expected instant insights for a populated bundle")
	}

	second, err := svc.GetOrCreate(context.Background(), "https://brightsmile-dental.com", Options{QuickScan: true})
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if !second.Cached {
		t.Error("second call within freshness window should be cached")
	}
	if fake.opens != 1 {
		t.Errorf("sessions opened = %d, want 1", fake.opens)
	}
}

func TestService_ForceRefreshRecollects(t *testing.T) {
	fake := &fakeScraper{ads: cannedAds()}
	svc := newTestService(fake, func() time.Time { return testNow })

	if _, err := svc.GetOrCreate(context.Background(), "dental clinic", Options{QuickScan: true}); err != nil {
		t.Fatal(err)
	}
	res, err := svc.GetOrCreate(context.Background(), "dental clinic", Options{QuickScan: true, ForceRefresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("forced refresh must not be served from cache")
	}
	if fake.opens != 2 {
		t.Errorf("sessions opened = %d, want 2", fake.opens)
	}
}

func TestService_StaleEntryRecollects(t *testing.T) {
	// WHY: the freshness window bounds data age; an entry past it is
	// replaced, not served.
	now := testNow
	fake := &fakeScraper{ads: cannedAds()}
	svc := newTestService(fake, func() time.Time { return now })

	if _, err := svc.GetOrCreate(context.Background(), "dental clinic", Options{QuickScan: true}); err != nil {
		t.Fatal(err)
	}

	now = testNow.Add(7*24*time.Hour + time.Minute)
	res, err := svc.GetOrCreate(context.Background(), "dental clinic", Options{QuickScan: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("stale entry must be recollected")
	}
	if fake.opens != 2 {
		t.Errorf("sessions opened = %d, want 2", fake.opens)
	}
}

func TestService_KeywordAliasesResolveToPrimary(t *testing.T) {
	fake := &fakeScraper{ads: cannedAds()}
	st := store.NewMemory()
	cfg := Config{Harvest: harvest.Config{SearchDelay: time.Millisecond, DelayJitter: -1}}
	svc := New(st, fake, cfg, nil, WithClock(func() time.Time { return testNow }))

	if _, err := svc.GetOrCreate(context.Background(), "https://brightsmile-dental.com", Options{QuickScan: true}); err != nil {
		t.Fatal(err)
	}

	for _, kw := range []string{"dentist", "dental implants", "invisalign", "teeth whitening"} {
		got, err := st.Get(context.Background(), store.Key(kw, "us"))
		if err != nil {
			t.Fatalf("alias %q: %v", kw, err)
		}
		if got.Niche != "dental" {
			t.Errorf("alias %q resolved to niche %q, want dental", kw, got.Niche)
		}
	}
}

func TestService_EmptyHarvestCachesThinResult(t *testing.T) {
	// WHY: caching an empty result keeps a portal outage from turning
	// every repeat request into another collection run.
	fake := &fakeScraper{}
	svc := newTestService(fake, func() time.Time { return testNow })

	first, err := svc.GetOrCreate(context.Background(), "dental clinic", Options{QuickScan: true})
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first call should collect")
	}
	if len(first.Intelligence.Ads) != 0 {
		t.Fatalf("ads = %d, want 0", len(first.Intelligence.Ads))
	}
	if first.Intelligence.Insights.AverageAdRuntime != 0 {
		t.Errorf("average runtime = %v, want 0", first.Intelligence.Insights.AverageAdRuntime)
	}

	second, err := svc.GetOrCreate(context.Background(), "dental clinic", Options{QuickScan: true})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("thin result should still be served from cache")
	}
	if fake.opens != 1 {
		t.Errorf("sessions opened = %d, want 1", fake.opens)
	}
}

func TestService_StageCheckpoints(t *testing.T) {
	fake := &fakeScraper{ads: cannedAds()}
	svc := newTestService(fake, func() time.Time { return testNow })

	var stages []string
	opts := Options{QuickScan: true, OnStage: func(s string) { stages = append(stages, s) }}
	if _, err := svc.GetOrCreate(context.Background(), "dental clinic", opts); err != nil {
		t.Fatal(err)
	}
	want := []string{StageClassify, StageHarvest, StageNormalize, StageAggregate, StageStore}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage[%d] = %q, want %q", i, stages[i], want[i])
		}
	}

	// A cache hit short-circuits after classification.
	stages = nil
	if _, err := svc.GetOrCreate(context.Background(), "dental clinic", opts); err != nil {
		t.Fatal(err)
	}
	if len(stages) != 1 || stages[0] != StageClassify {
		t.Errorf("cache-hit stages = %v, want [%s]", stages, StageClassify)
	}
}

func TestService_CancelledContext(t *testing.T) {
	fake := &fakeScraper{ads: cannedAds()}
	svc := newTestService(fake, func() time.Time { return testNow })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.GetOrCreate(ctx, "dental clinic", Options{QuickScan: true}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestInstantInsights_Thin(t *testing.T) {
	bundle := &store.NicheIntelligence{Niche: "dental", Location: "us"}
	lines := instantInsights(bundle)
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want single no-ads line", lines)
	}
}
