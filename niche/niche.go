// Package niche maps a target URL or free-text description to a canonical
// market niche with its related keywords and an inferred location.
//
// Classification is a pure lookup over a static table and never fails:
// unrecognized input resolves to the general-service fallback.
package niche

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Profile is the result of classifying one input. Immutable once returned.
type Profile struct {
	Niche    string   `json:"niche"`
	Keywords []string `json:"keywords"`
	Location string   `json:"location"`
}

// Primary returns the first (most specific) keyword for quick scans.
func (p Profile) Primary() string {
	if len(p.Keywords) == 0 {
		return p.Niche
	}
	return p.Keywords[0]
}

// entry is one row of the classification table. Terms are matched as
// substrings of the lower-cased input; the longest matching term wins,
// ties broken by table order.
type entry struct {
	terms    []string
	niche    string
	keywords []string
}

var table = []entry{
	{
		terms:    []string{"body contouring", "body-contouring", "coolsculpting", "fat freezing", "liposuction", "sculpting"},
		niche:    "body-contouring",
		keywords: []string{"body contouring", "coolsculpting", "fat reduction", "non surgical liposuction"},
	},
	{
		terms:    []string{"med spa", "medspa", "medical spa", "botox", "filler", "aesthetic"},
		niche:    "med-spa",
		keywords: []string{"med spa", "botox", "dermal fillers", "skin rejuvenation"},
	},
	{
		terms:    []string{"dentist", "dental", "orthodont", "invisalign", "teeth whitening"},
		niche:    "dental",
		keywords: []string{"dentist", "dental implants", "invisalign", "teeth whitening"},
	},
	{
		terms:    []string{"chiropract", "spinal", "back pain clinic"},
		niche:    "chiropractic",
		keywords: []string{"chiropractor", "back pain relief", "spinal adjustment"},
	},
	{
		terms:    []string{"gym", "fitness", "personal train", "crossfit", "workout"},
		niche:    "fitness",
		keywords: []string{"gym membership", "personal trainer", "fitness classes", "weight loss program"},
	},
	{
		terms:    []string{"real estate", "realtor", "homes for sale", "property", "estate agent"},
		niche:    "real-estate",
		keywords: []string{"real estate agent", "homes for sale", "sell my house", "property valuation"},
	},
	{
		terms:    []string{"lawyer", "attorney", "law firm", "legal", "solicitor"},
		niche:    "legal-services",
		keywords: []string{"personal injury lawyer", "attorney near me", "free legal consultation"},
	},
	{
		terms:    []string{"hvac", "air conditioning", "heating and cooling", "furnace repair"},
		niche:    "hvac",
		keywords: []string{"hvac repair", "air conditioning installation", "furnace repair", "ac tune up"},
	},
	{
		terms:    []string{"roofing", "roof repair", "roofer"},
		niche:    "roofing",
		keywords: []string{"roof replacement", "roof repair", "roofing contractor"},
	},
	{
		terms:    []string{"plumber", "plumbing", "drain cleaning", "water heater"},
		niche:    "plumbing",
		keywords: []string{"emergency plumber", "drain cleaning", "water heater installation"},
	},
	{
		terms:    []string{"landscap", "lawn care", "garden design", "tree service"},
		niche:    "landscaping",
		keywords: []string{"landscaping services", "lawn care", "garden design"},
	},
	{
		terms:    []string{"salon", "hair", "barber", "nails", "beauty"},
		niche:    "beauty-salon",
		keywords: []string{"hair salon", "barber shop", "nail salon", "beauty treatments"},
	},
	{
		terms:    []string{"restaurant", "takeaway", "food delivery", "catering"},
		niche:    "restaurant",
		keywords: []string{"restaurant near me", "food delivery", "catering services"},
	},
	{
		terms:    []string{"marketing agency", "seo", "web design", "digital marketing", "advertising agency"},
		niche:    "marketing-agency",
		keywords: []string{"digital marketing agency", "seo services", "web design", "lead generation"},
	},
	{
		terms:    []string{"insurance", "broker", "life cover"},
		niche:    "insurance",
		keywords: []string{"insurance quotes", "life insurance", "business insurance"},
	},
	{
		terms:    []string{"auto repair", "car service", "mechanic", "mot", "tyres"},
		niche:    "auto-repair",
		keywords: []string{"auto repair", "car service", "brake repair", "mot test"},
	},
}

const fallbackNiche = "general-service"

var fallbackKeywords = []string{"local services", "best service near me", "special offers"}

// Classify resolves the input to a Profile. It accepts a URL or a plain
// description; both contribute matching text. Never returns an error —
// unknown input falls back to the general-service niche.
func Classify(urlOrText string) Profile {
	text := strings.ToLower(strings.TrimSpace(urlOrText))
	loc := inferLocation(text)

	best := -1
	bestLen := 0
	for i, e := range table {
		for _, term := range e.terms {
			if strings.Contains(text, term) && len(term) > bestLen {
				best = i
				bestLen = len(term)
			}
		}
	}

	if best < 0 {
		return Profile{
			Niche:    fallbackNiche,
			Keywords: append([]string(nil), fallbackKeywords...),
			Location: loc,
		}
	}

	e := table[best]
	return Profile{
		Niche:    e.niche,
		Keywords: append([]string(nil), e.keywords...),
		Location: loc,
	}
}

// ccTLD → market code. Anything unlisted defaults to "us".
var markets = map[string]string{
	"uk": "uk", "ie": "ie", "ca": "ca", "au": "au", "nz": "nz",
	"de": "de", "fr": "fr", "es": "es", "it": "it", "nl": "nl",
	"br": "br", "mx": "mx", "in": "in", "sg": "sg", "za": "za",
}

// inferLocation derives a market code from the input's host suffix.
// "https://smile.co.uk" → "uk". Non-URL input or unknown suffix → "us".
func inferLocation(input string) string {
	host := input
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		host = u.Hostname()
	} else if i := strings.IndexAny(host, " \t\n"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")

	suffix, icann := publicsuffix.PublicSuffix(host)
	if !icann || suffix == "" {
		return "us"
	}
	// The trailing label of the public suffix carries the country code
	// ("co.uk" → "uk").
	labels := strings.Split(suffix, ".")
	tld := labels[len(labels)-1]
	if m, ok := markets[tld]; ok {
		return m
	}
	return "us"
}
