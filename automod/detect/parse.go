package detect

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/guildwarden/warden/automod/keyword"
	"github.com/guildwarden/warden/automod/verdict"
)

// Classifier output which could not be turned in to a verdict
var ErrUnparseable = errors.New("unparseable classifier output")

type field int

const (
	fieldUnknown field = iota
	fieldViolation
	fieldRule
	fieldSeverity
	fieldFake
	fieldAction
	fieldReason
)

// Field-name aliases, keyed by normalized name (case-folded, underscores as spaces). Covers both the current English field names and the older Vietnamese ones still found in stored prompt templates.
var fieldAliases = map[string]field{
	"violation":              fieldViolation,
	"is violation":           fieldViolation,
	"vi phạm":                fieldViolation,
	"có vi phạm":             fieldViolation,
	"rule":                   fieldRule,
	"violated rule":          fieldRule,
	"matched rule":           fieldRule,
	"quy tắc":                fieldRule,
	"quy tắc vi phạm":        fieldRule,
	"luật":                   fieldRule,
	"luật vi phạm":           fieldRule,
	"severity":               fieldSeverity,
	"mức độ":                 fieldSeverity,
	"mức độ vi phạm":         fieldSeverity,
	"fake account":           fieldFake,
	"fake":                   fieldFake,
	"suspected fake account": fieldFake,
	"tài khoản giả":          fieldFake,
	"tài khoản ảo":           fieldFake,
	"nghi tài khoản ảo":      fieldFake,
	"tài khoản clone":        fieldFake,
	"action":                 fieldAction,
	"recommended action":     fieldAction,
	"hành động":              fieldAction,
	"hình phạt":              fieldAction,
	"đề xuất":                fieldAction,
	"reason":                 fieldReason,
	"lý do":                  fieldReason,
	"lí do":                  fieldReason,
	"giải thích":             fieldReason,
}

type alias[T any] struct {
	text string
	val  T
}

// checked in order; longer phrases sharing a prefix come first
var yesNoAliases = []alias[bool]{
	{"có", true},
	{"yes", true},
	{"true", true},
	{"y", true},
	{"không", false},
	{"ko", false},
	{"no", false},
	{"false", false},
	{"n", false},
}

var severityAliases = []alias[verdict.Severity]{
	{"nghiêm trọng", verdict.SeverityHigh},
	{"cao", verdict.SeverityHigh},
	{"high", verdict.SeverityHigh},
	{"severe", verdict.SeverityHigh},
	{"critical", verdict.SeverityHigh},
	{"trung bình", verdict.SeverityMedium},
	{"vừa", verdict.SeverityMedium},
	{"medium", verdict.SeverityMedium},
	{"moderate", verdict.SeverityMedium},
	{"thấp", verdict.SeverityLow},
	{"nhẹ", verdict.SeverityLow},
	{"low", verdict.SeverityLow},
	{"không", verdict.SeverityNone},
	{"none", verdict.SeverityNone},
	{"n/a", verdict.SeverityNone},
}

var actionAliases = []alias[verdict.Action]{
	{"không", verdict.ActionNone},
	{"none", verdict.ActionNone},
	{"no action", verdict.ActionNone},
	{"cảnh báo", verdict.ActionWarn},
	{"warning", verdict.ActionWarn},
	{"warn", verdict.ActionWarn},
	{"xóa tin nhắn", verdict.ActionDeleteMessage},
	{"xoá tin nhắn", verdict.ActionDeleteMessage},
	{"xóa", verdict.ActionDeleteMessage},
	{"xoá", verdict.ActionDeleteMessage},
	{"delete message", verdict.ActionDeleteMessage},
	{"deletemessage", verdict.ActionDeleteMessage},
	{"delete", verdict.ActionDeleteMessage},
	{"tắt tiếng", verdict.ActionMute},
	{"cấm chat", verdict.ActionMute},
	{"timeout", verdict.ActionMute},
	{"mute", verdict.ActionMute},
	{"đuổi", verdict.ActionKick},
	{"kick", verdict.ActionKick},
	{"cấm vĩnh viễn", verdict.ActionBan},
	{"cấm", verdict.ActionBan},
	{"ban", verdict.ActionBan},
}

var noRuleValues = []string{"none", "không", "không có", "n/a", "-"}

// matches if the value is the alias, or starts with the alias followed by a non-letter (so "không" does not match "khôngg", and "no" does not match "none")
func matchAlias[T any](val string, aliases []alias[T]) (T, bool) {
	for _, a := range aliases {
		if !strings.HasPrefix(val, a.text) {
			continue
		}
		rest := val[len(a.text):]
		if rest == "" {
			return a.val, true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return a.val, true
		}
	}
	var zero T
	return zero, false
}

func normalizeKey(k string) string {
	k = keyword.Normalize(k)
	k = strings.Trim(k, " \t*_#-•>`")
	k = strings.ReplaceAll(k, "_", " ")
	return strings.Join(strings.Fields(k), " ")
}

func normalizeValue(v string) string {
	v = keyword.Normalize(v)
	v = strings.Trim(v, " \t*_`\"'“”[]()")
	return strings.Join(strings.Fields(v), " ")
}

// splits "KEY: value" (ASCII or fullwidth colon); returns fieldUnknown if the key is not a known alias
func splitField(seg string) (field, string) {
	idx := strings.IndexAny(seg, ":：")
	if idx <= 0 {
		return fieldUnknown, ""
	}
	f, ok := fieldAliases[normalizeKey(seg[:idx])]
	if !ok {
		return fieldUnknown, ""
	}
	_, w := utf8.DecodeRuneInString(seg[idx:])
	return f, strings.TrimSpace(seg[idx+w:])
}

// Parses fixed-field classifier output in to a verdict.
//
// Fields may be one per line or separated by " / " on a single line. Unknown lines are ignored, except that a line without a recognized key continues the preceding field's value. VIOLATION, SEVERITY and ACTION are required; a missing or unrecognized value for any of them returns ErrUnparseable.
func ParseVerdict(raw string) (verdict.Verdict, error) {
	vals := make(map[field]string)
	last := fieldUnknown
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		for i, seg := range strings.Split(line, " / ") {
			f, val := splitField(seg)
			if f == fieldUnknown {
				if last != fieldUnknown {
					sep := " / "
					if i == 0 {
						sep = "\n"
					}
					vals[last] = joinNonEmpty(vals[last], strings.TrimSpace(seg), sep)
				}
				continue
			}
			// first occurrence wins
			if _, dupe := vals[f]; dupe {
				last = fieldUnknown
				continue
			}
			vals[f] = val
			last = f
		}
		// only the reason may continue on following lines
		if last != fieldReason {
			last = fieldUnknown
		}
	}

	var missing []string
	isViolation, ok := matchAlias(normalizeValue(vals[fieldViolation]), yesNoAliases)
	if !ok {
		missing = append(missing, "VIOLATION")
	}
	severity, ok := matchAlias(normalizeValue(vals[fieldSeverity]), severityAliases)
	if !ok {
		missing = append(missing, "SEVERITY")
	}
	action, ok := matchAlias(normalizeValue(vals[fieldAction]), actionAliases)
	if !ok {
		missing = append(missing, "ACTION")
	}
	if len(missing) > 0 {
		return verdict.Verdict{}, fmt.Errorf("%w: missing or unrecognized %s", ErrUnparseable, strings.Join(missing, ", "))
	}

	fake, _ := matchAlias(normalizeValue(vals[fieldFake]), yesNoAliases)
	reason := strings.TrimSpace(vals[fieldReason])

	if !isViolation {
		v := verdict.Clean(reason)
		v.IsFakeAccountSuspected = fake
		return v, nil
	}

	rule := strings.Trim(strings.TrimSpace(vals[fieldRule]), "\"'“”`*")
	for _, nr := range noRuleValues {
		if normalizeValue(rule) == nr {
			rule = ""
		}
	}
	if rule == "" {
		rule = verdict.NoRule
	}
	return verdict.Verdict{
		IsViolation:            true,
		ViolatedRule:           rule,
		Severity:               severity,
		IsFakeAccountSuspected: fake,
		RecommendedAction:      action,
		Reason:                 reason,
	}, nil
}

func joinNonEmpty(a, b, sep string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + sep + b
}
