// Package classify decides whether a post looks like community
// self-promotion worth spotlighting.
//
// Classification runs an ordered list of rules over the post text; the first
// rule that matches wins. Hard rejections (spam, commercial context, link
// spam) come before any acceptance tier, and acceptance tiers require
// progressively more corroboration as the signal gets weaker: an explicit
// opt-in tag is enough on its own, the medium tag needs a developer-context
// word next to it, and a bare link needs at least two promotional keywords.
package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rivo/uniseg"
)

type Verdict int

const (
	VerdictReject Verdict = iota
	VerdictAccept
)

// Decision reports the outcome and which rule produced it.
type Decision struct {
	Accept bool
	Rule   string
}

// RuleSet holds the keyword tables driving classification. The zero value is
// not usable; start from DefaultRuleSet and override as needed.
type RuleSet struct {
	// SpamTerms hard-reject regardless of anything else in the text.
	SpamTerms []string `json:"spam_terms"`
	// BadContextTerms reject commercial/academic language that co-occurs
	// with false positives.
	BadContextTerms []string `json:"bad_context_terms"`
	// StrongTag is the explicit opt-in marker; its presence alone accepts.
	StrongTag string `json:"strong_tag"`
	// MediumTag accepts only together with a ContextWords hit.
	MediumTag    string   `json:"medium_tag"`
	ContextWords []string `json:"context_words"`
	// CommunityTags accept on their own.
	CommunityTags []string `json:"community_tags"`
	// PromoKeywords are the weak tier: a link plus MinPromoHits of these.
	PromoKeywords []string `json:"promo_keywords"`

	MaxLinks     int `json:"max_links"`
	MinLength    int `json:"min_length"`
	MinPromoHits int `json:"min_promo_hits"`
}

func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		SpamTerms: []string{
			"% off", "discount", "cupom", "coupon", "promo code", "free shipping",
			"buy now", "shop now", "for sale", "giveaway", "airdrop", "casino",
			"onlyfans", "breaking news", "top stories", "iphone", "samsung galaxy",
		},
		BadContextTerms: []string{
			"webinar", "masterclass", "enroll now", "limited seats", "hiring",
			"job opening", "we are looking for", "call for papers", "peer-reviewed",
			"sponsored post",
		},
		StrongTag: "#spotlightme",
		MediumTag: "#buildinpublic",
		ContextWords: []string{
			"built", "build", "shipped", "ship", "project", "launch", "launched",
			"released", "made", "created", "working on", "prototype", "demo",
		},
		CommunityTags: []string{
			"#indiedev", "#indiehackers", "#sideproject", "#devlog", "#solodev",
		},
		PromoKeywords: []string{
			"check out", "i built", "i made", "my new", "just launched",
			"just shipped", "feedback welcome", "would love feedback", "beta",
			"waitlist", "side project", "open source",
		},
		MaxLinks:     2,
		MinLength:    20,
		MinPromoHits: 2,
	}
}

// LoadFromFileJSON replaces the rule tables with the contents of a JSON
// config file. Fields absent from the file keep their current values.
func (r *RuleSet) LoadFromFileJSON(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, r); err != nil {
		return fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return nil
}

type rule struct {
	name    string
	verdict Verdict
	match   func(t string) bool
}

// ordered; first match wins
func (r *RuleSet) rules() []rule {
	return []rule{
		{"spam-term", VerdictReject, func(t string) bool {
			return ContainsAny(t, r.SpamTerms)
		}},
		{"bad-context", VerdictReject, func(t string) bool {
			return ContainsAny(t, r.BadContextTerms)
		}},
		{"link-spam", VerdictReject, func(t string) bool {
			return CountLinks(t) > r.MaxLinks
		}},
		{"too-short", VerdictReject, func(t string) bool {
			// character count, not bytes; multibyte posts are short too
			return uniseg.GraphemeClusterCount(t) < r.MinLength && !strings.Contains(t, r.StrongTag)
		}},
		{"strong-tag", VerdictAccept, func(t string) bool {
			return strings.Contains(t, r.StrongTag)
		}},
		{"medium-tag-context", VerdictAccept, func(t string) bool {
			return strings.Contains(t, r.MediumTag) && ContainsAny(t, r.ContextWords)
		}},
		{"community-tag", VerdictAccept, func(t string) bool {
			return ContainsAny(t, r.CommunityTags)
		}},
		{"link-promo", VerdictAccept, func(t string) bool {
			return CountLinks(t) > 0 && CountAny(t, r.PromoKeywords) >= r.MinPromoHits
		}},
	}
}

// Evaluate runs the ordered rules against the text. Matching is
// case-insensitive; empty text always rejects.
func (r *RuleSet) Evaluate(text string) Decision {
	if text == "" {
		return Decision{Accept: false, Rule: "empty"}
	}
	t := Normalize(text)
	for _, ru := range r.rules() {
		if ru.match(t) {
			return Decision{Accept: ru.verdict == VerdictAccept, Rule: ru.name}
		}
	}
	return Decision{Accept: false, Rule: "default"}
}

// Classify is the boolean form of Evaluate.
func (r *RuleSet) Classify(text string) bool {
	return r.Evaluate(text).Accept
}

// AllTags returns every campaign tag the rule set knows about, for stripping
// from text before re-posting.
func (r *RuleSet) AllTags() []string {
	tags := []string{r.StrongTag, r.MediumTag}
	tags = append(tags, r.CommunityTags...)
	return tags
}
