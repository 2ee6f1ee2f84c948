// Deterministic matching of "forbidden term" rules against message text.
//
// A rule like "không chat s4ory" or "do not say foo" names a single term which must not appear in messages. Such rules can be checked with a substring test, without a classifier call.
package keyword

import (
	"regexp"
	"strings"
)

var (
	// Vietnamese: "không chat X", "cấm nói X", "không được nhắc đến X", ...
	viTermRule = regexp.MustCompile(`(?i)^\s*(?:không được|không|ko|k|cấm|đừng)\s+(?:chat|nói|nhắc đến|nhắc tới|nhắc|gõ|viết|dùng từ|đề cập đến|đề cập)\s+(.+?)\s*$`)
	// English: "do not say X", "don't chat X", "never mention X", ...
	enTermRule = regexp.MustCompile(`(?i)^\s*(?:do not|don't|dont|never|no)\s+(?:say|chat|type|write|mention|post|use the word)\s+(.+?)\s*$`)

	termRulePatterns = []*regexp.Regexp{viTermRule, enTermRule}
)

const termTrimChars = "\"'`“”‘’«».,!?;:"

// A rule which bans a single term, with the rule's position in the workspace rule list.
type TermRule struct {
	Rule string
	// 1-based position of the rule in the rule list
	Index int
	Term  string
}

// Extracts the banned term from a "do not say/chat <term>" rule. Returns false if the rule is not of that form.
func ForbiddenTerm(rule string) (string, bool) {
	for _, re := range termRulePatterns {
		m := re.FindStringSubmatch(rule)
		if m == nil {
			continue
		}
		term := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), termTrimChars))
		if term == "" {
			return "", false
		}
		return term, true
	}
	return "", false
}

// Returns the term rules from an ordered rule list, preserving order (which is priority order)
func ExtractTermRules(rules []string) []TermRule {
	var out []TermRule
	for i, r := range rules {
		if term, ok := ForbiddenTerm(r); ok {
			out = append(out, TermRule{Rule: r, Index: i + 1, Term: term})
		}
	}
	return out
}

// First term rule (in priority order) whose term appears in the text
func FirstMatch(text string, rules []TermRule) (TermRule, bool) {
	norm := Normalize(text)
	for _, tr := range rules {
		t := strings.TrimSpace(Normalize(tr.Term))
		if t != "" && strings.Contains(norm, t) {
			return tr, true
		}
	}
	return TermRule{}, false
}
