// Package insight reduces collections of ad records into niche-level
// summaries and per-advertiser competitor profiles. All derivations are
// deterministic over the input slice order.
package insight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adlens/adlens/normalize"
)

// winningThreshold is the days-running bar above which an ad is treated as
// a profitability proxy.
const winningThreshold = 30

const listCap = 5

// excerptRunes bounds guarantee excerpts, counted in characters.
const excerptRunes = 100

// TopPerformer is one advertiser ranked by its longest-running ad.
type TopPerformer struct {
	Advertiser     string `json:"advertiser"`
	AdCount        int    `json:"ad_count"`
	LongestRunning int    `json:"longest_running_days"`
}

// Insights summarises one niche's collected ads.
type Insights struct {
	CommonHeadlines   []string       `json:"common_headlines"`
	WinningHooks      []string       `json:"winning_hooks"`
	PriceRanges       []string       `json:"price_ranges"`
	CommonOffers      []string       `json:"common_offers"`
	UrgencyTactics    []string       `json:"urgency_tactics"`
	GuaranteeExcerpts []string       `json:"guarantee_excerpts"`
	AverageAdRuntime  float64        `json:"average_ad_runtime"`
	TopPerformers     []TopPerformer `json:"top_performers"`
}

// CompetitorProfile is the derived view of one advertiser's activity.
type CompetitorProfile struct {
	Advertiser string   `json:"advertiser"`
	ActiveAds  int      `json:"active_ads"`
	Strategy   string   `json:"strategy"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// Aggregate computes the Insights summary. Empty input yields a
// zero-valued summary (average runtime 0), never an error.
func Aggregate(records []normalize.AdRecord) Insights {
	ins := Insights{
		CommonHeadlines:   dedupeCap(headlines(records), listCap),
		WinningHooks:      winningHooks(records),
		PriceRanges:       dedupeCap(prices(records), listCap),
		CommonOffers:      rankedOffers(records),
		UrgencyTactics:    dedupeCap(urgencies(records), listCap),
		GuaranteeExcerpts: guaranteeExcerpts(records),
		TopPerformers:     topPerformers(records),
	}

	if len(records) > 0 {
		total := 0
		for _, r := range records {
			total += r.DaysRunning
		}
		ins.AverageAdRuntime = float64(total) / float64(len(records))
	}

	return ins
}

func headlines(records []normalize.AdRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Headline != "" {
			out = append(out, r.Headline)
		}
	}
	return out
}

func winningHooks(records []normalize.AdRecord) []string {
	var hooks []string
	for _, r := range records {
		if r.DaysRunning > winningThreshold && r.Headline != "" {
			hooks = append(hooks, r.Headline)
			if len(hooks) == listCap {
				break
			}
		}
	}
	return hooks
}

func prices(records []normalize.AdRecord) []string {
	var out []string
	for _, r := range records {
		if r.PricePoint != "" {
			out = append(out, r.PricePoint)
		}
	}
	return out
}

func urgencies(records []normalize.AdRecord) []string {
	var out []string
	for _, r := range records {
		if r.UrgencyType != "" {
			out = append(out, r.UrgencyType)
		}
	}
	return out
}

// rankedOffers counts offer-type frequency and returns the top entries by
// count descending, ties broken by first-seen order.
func rankedOffers(records []normalize.AdRecord) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	var order []string
	for i, r := range records {
		if r.OfferType == "" {
			continue
		}
		if _, ok := counts[r.OfferType]; !ok {
			firstSeen[r.OfferType] = i
			order = append(order, r.OfferType)
		}
		counts[r.OfferType]++
	}

	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})

	if len(order) > listCap {
		order = order[:listCap]
	}
	return order
}

func guaranteeExcerpts(records []normalize.AdRecord) []string {
	var out []string
	for _, r := range records {
		if !strings.Contains(strings.ToLower(r.BodyText), "guarantee") {
			continue
		}
		excerpt := r.BodyText
		// Rune-wise: ad copy is full of currency signs and curly quotes,
		// and a byte slice can cut one in half.
		if runes := []rune(excerpt); len(runes) > excerptRunes {
			excerpt = string(runes[:excerptRunes])
		}
		out = append(out, excerpt)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func topPerformers(records []normalize.AdRecord) []TopPerformer {
	type agg struct {
		count   int
		longest int
		seen    int
	}
	byAdv := make(map[string]*agg)
	var order []string
	for i, r := range records {
		if r.Advertiser == "" {
			continue
		}
		a, ok := byAdv[r.Advertiser]
		if !ok {
			a = &agg{seen: i}
			byAdv[r.Advertiser] = a
			order = append(order, r.Advertiser)
		}
		a.count++
		if r.DaysRunning > a.longest {
			a.longest = r.DaysRunning
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		ai, aj := byAdv[order[i]], byAdv[order[j]]
		if ai.longest != aj.longest {
			return ai.longest > aj.longest
		}
		return ai.seen < aj.seen
	})

	if len(order) > listCap {
		order = order[:listCap]
	}
	out := make([]TopPerformer, len(order))
	for i, adv := range order {
		out[i] = TopPerformer{
			Advertiser:     adv,
			AdCount:        byAdv[adv].count,
			LongestRunning: byAdv[adv].longest,
		}
	}
	return out
}

// GroupCompetitors derives one CompetitorProfile per advertiser, in
// first-seen order.
func GroupCompetitors(records []normalize.AdRecord) []CompetitorProfile {
	grouped := make(map[string][]normalize.AdRecord)
	var order []string
	for _, r := range records {
		if r.Advertiser == "" {
			continue
		}
		if _, ok := grouped[r.Advertiser]; !ok {
			order = append(order, r.Advertiser)
		}
		grouped[r.Advertiser] = append(grouped[r.Advertiser], r)
	}

	profiles := make([]CompetitorProfile, 0, len(order))
	for _, adv := range order {
		ads := grouped[adv]
		profiles = append(profiles, CompetitorProfile{
			Advertiser: adv,
			ActiveAds:  len(ads),
			Strategy:   strategyLabel(ads),
			Strengths:  strengths(ads),
			Weaknesses: weaknesses(ads),
		})
	}
	return profiles
}

// strategyLabel produces the single free-text positioning summary for an
// advertiser, from its dominant offer type and urgency tactic.
func strategyLabel(ads []normalize.AdRecord) string {
	offerCounts := make(map[string]int)
	urgencyCounts := make(map[string]int)
	for _, a := range ads {
		if a.OfferType != "" {
			offerCounts[a.OfferType]++
		}
		if a.UrgencyType != "" {
			urgencyCounts[a.UrgencyType]++
		}
	}

	offer := dominant(offerCounts, ads, func(a normalize.AdRecord) string { return a.OfferType })
	label := fmt.Sprintf("leads with %s offers", offer)
	if urgency := dominant(urgencyCounts, ads, func(a normalize.AdRecord) string { return a.UrgencyType }); urgency != "" {
		label += fmt.Sprintf(", %s urgency", urgency)
	}
	return label
}

// dominant picks the highest-count key; ties resolve to whichever appears
// first in the ads slice, keeping the label deterministic.
func dominant(counts map[string]int, ads []normalize.AdRecord, key func(normalize.AdRecord) string) string {
	best, bestCount := "", 0
	for _, a := range ads {
		k := key(a)
		if k == "" {
			continue
		}
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func strengths(ads []normalize.AdRecord) []string {
	var out []string
	for _, a := range ads {
		if a.DaysRunning > 60 {
			out = append(out, "long-running, proven")
			break
		}
	}
	for _, a := range ads {
		if len(distinct(a.EmotionalTriggers)) > 2 {
			out = append(out, "multi-trigger messaging")
			break
		}
	}
	return out
}

func weaknesses(ads []normalize.AdRecord) []string {
	var out []string
	hasUrgency, hasProof := false, false
	for _, a := range ads {
		if a.UrgencyType != "" {
			hasUrgency = true
		}
		if a.SocialProof != "" {
			hasProof = true
		}
	}
	if !hasUrgency {
		out = append(out, "no urgency")
	}
	if !hasProof {
		out = append(out, "no social proof")
	}
	return out
}

func distinct(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// dedupeCap removes duplicates preserving first-seen order and caps the
// result.
func dedupeCap(items []string, limit int) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}
