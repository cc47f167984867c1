package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountLinks(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0, CountLinks("no links here"))
	assert.Equal(1, CountLinks("see https://example.com"))
	assert.Equal(2, CountLinks("http://a.com and https://b.com"))
	// schemes are counted separately, not double-counted
	assert.Equal(1, CountLinks("https://only.one"))
}

func TestContainsAny(t *testing.T) {
	assert := assert.New(t)

	terms := []string{"alpha", "beta"}
	assert.True(ContainsAny("an alpha release", terms))
	assert.False(ContainsAny("gamma only", terms))
	assert.False(ContainsAny("anything", nil))
	assert.Equal(2, CountAny("alpha and beta", terms))
	assert.Equal(0, CountAny("gamma", terms))
}

func TestStripTags(t *testing.T) {
	assert := assert.New(t)

	out := StripTags("shipped it #BuildInPublic today #indiedev", []string{"#buildinpublic", "#indiedev"})
	assert.Equal("shipped it today", out)

	assert.Equal("unchanged", StripTags("unchanged", []string{"#tag"}))
	assert.Equal("", StripTags("#tag", []string{"#tag"}))
}
