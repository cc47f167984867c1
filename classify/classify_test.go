package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateFixtures(t *testing.T) {
	assert := assert.New(t)
	rules := DefaultRuleSet()

	fixtures := []struct {
		text   string
		accept bool
		rule   string
	}{
		{text: "", accept: false, rule: "empty"},
		{text: "hi", accept: false, rule: "too-short"},
		{text: "cool #spotlightme", accept: true, rule: "strong-tag"},
		{text: "Just shipped my new side project! https://example.com #buildinpublic", accept: true, rule: "medium-tag-context"},
		{text: "50% off iPhone 17 cases, use cupom CODE123", accept: false, rule: "spam-term"},
		{text: "My new devtool is out today, try it! #spotlightme", accept: true, rule: "strong-tag"},
		// denylist dominates even with a strong tag present
		{text: "Huge DISCOUNT on my course #spotlightme", accept: false, rule: "spam-term"},
		{text: "Join our webinar about building SaaS products #buildinpublic", accept: false, rule: "bad-context"},
		// three links is link spam
		{text: "look http://a.com https://b.com http://c.com #buildinpublic built this", accept: false, rule: "link-spam"},
		{text: "a thing happened in the world today, more at eleven", accept: false, rule: "default"},
		{text: "We just moved #indiedev meetup to thursday", accept: true, rule: "community-tag"},
		// weak tier: link plus two promo keywords
		{text: "Check out my new recipe organizer, feedback welcome https://example.com", accept: true, rule: "link-promo"},
		// link with only one promo keyword is not enough
		{text: "Check out this long article about gardening https://example.com", accept: false, rule: "default"},
		// tag matching is case-insensitive
		{text: "finally done with it! #SpotlightMe", accept: true, rule: "strong-tag"},
	}

	for _, fix := range fixtures {
		d := rules.Evaluate(fix.text)
		assert.Equal(fix.accept, d.Accept, "text: %q", fix.text)
		assert.Equal(fix.rule, d.Rule, "text: %q", fix.text)
		assert.Equal(fix.accept, rules.Classify(fix.text), "text: %q", fix.text)
	}
}

func TestDenylistAlwaysRejects(t *testing.T) {
	assert := assert.New(t)
	rules := DefaultRuleSet()

	for _, term := range rules.SpamTerms {
		text := "I built a project, launch is today #spotlightme #indiedev https://example.com " + term
		assert.False(rules.Classify(text), "term: %q", term)
	}
}

func TestShortTextRejectsWithoutStrongTag(t *testing.T) {
	assert := assert.New(t)
	rules := DefaultRuleSet()

	assert.False(rules.Classify("my app!"))
	assert.False(rules.Classify("#indiedev"))
	// multibyte text under 20 characters is short even at 20+ bytes
	assert.False(rules.Classify("新しいアプリを作ったよ"))
	// the strong tag rescues short text
	assert.True(rules.Classify("#spotlightme"))
}
