package intel

import (
	"fmt"
	"strings"

	"github.com/adlens/adlens/intel/store"
)

// instantInsights renders a handful of human-readable one-liners from a
// stored bundle. These are derived views only; nothing here re-aggregates.
func instantInsights(intel *store.NicheIntelligence) []string {
	if intel == nil {
		return nil
	}
	ins := intel.Insights
	var lines []string

	if n := len(intel.Ads); n > 0 {
		lines = append(lines, fmt.Sprintf("%d active ads tracked across %d competitors in %s", n, len(intel.Competitors), intel.Niche))
	} else {
		lines = append(lines, fmt.Sprintf("no active ads found for %s yet", intel.Niche))
	}
	if len(ins.TopPerformers) > 0 {
		top := ins.TopPerformers[0]
		lines = append(lines, fmt.Sprintf("%s leads the niche with an ad running %d days", top.Advertiser, top.LongestRunning))
	}
	if len(ins.WinningHooks) > 0 {
		lines = append(lines, fmt.Sprintf("proven hook: %q", ins.WinningHooks[0]))
	}
	if len(ins.CommonOffers) > 0 {
		lines = append(lines, fmt.Sprintf("most common offer: %s", strings.ReplaceAll(ins.CommonOffers[0], "-", " ")))
	}
	if len(ins.UrgencyTactics) > 0 {
		lines = append(lines, fmt.Sprintf("urgency tactics in play: %s", strings.Join(ins.UrgencyTactics, ", ")))
	}
	if ins.AverageAdRuntime > 0 {
		lines = append(lines, fmt.Sprintf("average ad runtime is %.0f days", ins.AverageAdRuntime))
	}
	return lines
}
