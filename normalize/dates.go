package normalize

import (
	"regexp"
	"strings"
	"time"
)

// datePatterns pair an extraction regex with the time layouts tried on the
// match. Portal date text varies by locale and deployment.
var datePatterns = []struct {
	re      *regexp.Regexp
	layouts []string
}{
	// "Jan 5, 2025" / "January 5, 2025"
	{
		re:      regexp.MustCompile(`(?i)\b([A-Za-z]{3,9} \d{1,2}, \d{4})\b`),
		layouts: []string{"Jan 2, 2006", "January 2, 2006"},
	},
	// "5 Jan 2025" / "12 March 2025"
	{
		re:      regexp.MustCompile(`(?i)\b(\d{1,2} [A-Za-z]{3,9} \d{4})\b`),
		layouts: []string{"2 Jan 2006", "2 January 2006"},
	},
	// ISO "2025-01-05"
	{
		re:      regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		layouts: []string{"2006-01-02"},
	},
	// US "01/05/2025"
	{
		re:      regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`),
		layouts: []string{"1/2/2006"},
	},
}

// relativeRe matches "3 days ago", "2 weeks ago", "1 month ago".
var relativeRe = regexp.MustCompile(`(?i)\b(\d+)\s+(day|week|month)s?\s+ago\b`)

// parseStartDate extracts a run-start date from free text. Returns false
// when nothing parseable is found; future dates are rejected the same way.
func parseStartDate(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	for _, p := range datePatterns {
		m := p.re.FindString(text)
		if m == "" {
			continue
		}
		for _, layout := range p.layouts {
			t, err := time.Parse(layout, m)
			if err != nil {
				continue
			}
			if t.After(now) {
				return time.Time{}, false
			}
			return t, true
		}
	}

	if m := relativeRe.FindStringSubmatch(text); m != nil {
		n := 0
		for _, c := range m[1] {
			n = n*10 + int(c-'0')
		}
		switch strings.ToLower(m[2]) {
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		}
	}

	return time.Time{}, false
}
