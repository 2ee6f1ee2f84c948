package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForbiddenTerm(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		rule string
		term string
		ok   bool
	}{
		{rule: "không chat s4ory", term: "s4ory", ok: true},
		{rule: "Không được nhắc đến \"dự án X\"", term: "dự án X", ok: true},
		{rule: "cấm nói bậy.", term: "bậy", ok: true},
		{rule: "Do not say foobar", term: "foobar", ok: true},
		{rule: "don't mention 'the thing'", term: "the thing", ok: true},
		{rule: "Không spam link", ok: false},
		{rule: "be nice to each other", ok: false},
		{rule: "không chat \"\"", ok: false},
	}

	for _, fix := range fixtures {
		term, ok := ForbiddenTerm(fix.rule)
		assert.Equal(fix.ok, ok, fix.rule)
		assert.Equal(fix.term, term, fix.rule)
	}
}

func TestFirstMatchPriority(t *testing.T) {
	assert := assert.New(t)

	rules := ExtractTermRules([]string{
		"be respectful",
		"không chat s4ory",
		"do not say ai",
	})
	assert.Equal(2, len(rules))
	assert.Equal(2, rules[0].Index)
	assert.Equal(3, rules[1].Index)

	// both terms present: earlier rule wins
	tr, ok := FirstMatch("S4ory là ai", rules)
	assert.True(ok)
	assert.Equal("không chat s4ory", tr.Rule)

	tr, ok = FirstMatch("ai đó", rules)
	assert.True(ok)
	assert.Equal("do not say ai", tr.Rule)

	_, ok = FirstMatch("xin chào", rules)
	assert.False(ok)
}
