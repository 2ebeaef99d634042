package harvest

import (
	"regexp"
	"strings"
)

// Selector heuristics for ad extraction. Portal markup is obfuscated and
// shifts between deployments, so every field carries a prioritized list —
// the first selector that matches wins. The same lists drive both the
// browser session and the HTTP fallback.

var adContainerSelectors = []string{
	`div[role="article"]`,
	`div[data-testid="ad-card"]`,
	`div[class*="adCard"]`,
	`div[class*="AdLibrary"]`,
	`div[class*="_7jvw"]`,
}

var advertiserSelectors = []string{
	`a[data-testid="page-name"]`,
	`span[class*="pageName"]`,
	`a[role="link"] strong`,
	`strong`,
}

var bodySelectors = []string{
	`div[data-testid="ad-creative-body"]`,
	`div[class*="creativeBody"]`,
	`div[class*="_7jyr"]`,
	`div[dir="auto"]`,
}

var ctaSelectors = []string{
	`div[data-testid="cta-button"]`,
	`a[role="button"]`,
	`div[role="button"]`,
}

var landingSelectors = []string{
	`a[data-testid="snapshot-link"]`,
	`a[target="_blank"]`,
}

// startedTextRe finds the run-start line shown on ad cards, e.g.
// "Started running on Jan 5, 2025" or "Active since 12 Mar 2025".
var startedTextRe = regexp.MustCompile(`(?i)(started running on|active since|running since)\s+[^\n·|]+`)

// extractStartedText pulls the run-start phrase out of a card's full text.
func extractStartedText(cardText string) string {
	return strings.TrimSpace(startedTextRe.FindString(cardText))
}

// firstLine returns the first non-empty line of text, as a headline
// fallback when no dedicated headline element matches.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}
