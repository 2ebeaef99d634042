package normalize

import (
	"regexp"
	"strings"
)

// Derived-tag vocabularies. Each detect function is an independent pass
// over the lower-cased ad text; their relative order does not matter.

var triggerVocab = []struct {
	tag   string
	terms []string
}{
	{"fear", []string{"don't miss", "warning", "avoid", "mistake", "before it's too late", "stop wasting", "risk"}},
	{"greed", []string{"save", "% off", "discount", "free", "deal", "bonus", "half price"}},
	{"exclusivity", []string{"exclusive", "invite only", "members only", "vip", "limited spots", "selected"}},
	{"trust", []string{"guarantee", "certified", "trusted", "proven", "licensed", "5-star", "award"}},
	{"transformation", []string{"transform", "results", "before and after", "new you", "change your life", "finally"}},
}

// detectTriggers returns every matching emotional-trigger tag, in
// vocabulary order.
func detectTriggers(text string) []string {
	var tags []string
	for _, v := range triggerVocab {
		for _, term := range v.terms {
			if strings.Contains(text, term) {
				tags = append(tags, v.tag)
				break
			}
		}
	}
	return tags
}

// offerVocab is scanned in priority order; the first matching label wins.
var offerVocab = []struct {
	label string
	terms []string
}{
	{"free-consultation", []string{"free consultation", "free consult", "free assessment", "free quote", "free estimate"}},
	{"discount", []string{"% off", "percent off", "save", "discount", "sale"}},
	{"free-trial", []string{"free trial", "try free", "first session free", "first month free", "free class"}},
	{"guarantee-based", []string{"guarantee", "money back", "money-back", "risk-free", "risk free"}},
}

func detectOfferType(text string) string {
	for _, v := range offerVocab {
		for _, term := range v.terms {
			if strings.Contains(text, term) {
				return v.label
			}
		}
	}
	return "standard"
}

// urgencyVocab is scanned in priority order; first match wins.
var urgencyVocab = []struct {
	label string
	terms []string
}{
	{"immediate", []string{"now", "today", "instantly", "immediately", "right away"}},
	{"deadline", []string{"ends", "expires", "last day", "deadline", "until", "this week only"}},
	{"scarcity", []string{"limited", "only a few", "spots left", "while supplies", "selling fast", "almost gone"}},
}

func detectUrgencyType(text string) string {
	for _, v := range urgencyVocab {
		for _, term := range v.terms {
			if strings.Contains(text, term) {
				return v.label
			}
		}
	}
	return ""
}

// priceRe matches the first currency-prefixed number: "$99", "£1,299.00".
var priceRe = regexp.MustCompile(`[$£€]\s?\d[\d,]*(?:\.\d+)?`)

func detectPricePoint(text string) string {
	return strings.TrimSpace(priceRe.FindString(text))
}

// socialProofRe matches "10,000+ customers", "500 clients", "1200+ reviews".
var socialProofRe = regexp.MustCompile(`\d[\d,]*\+?\s+(?:happy\s+)?(?:customers|clients|reviews|patients|members)`)

func detectSocialProof(text string) string {
	return strings.TrimSpace(socialProofRe.FindString(text))
}
