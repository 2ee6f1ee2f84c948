package detect

import (
	"testing"

	"github.com/guildwarden/warden/automod/verdict"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdictFields(t *testing.T) {
	assert := assert.New(t)

	raw := `VIOLATION: Có
RULE: Không spam link
SEVERITY: Trung bình
FAKE_ACCOUNT: Không
ACTION: Xóa tin nhắn
REASON: Tin nhắn chứa link quảng cáo`
	v, err := ParseVerdict(raw)
	assert.NoError(err)
	assert.True(v.IsViolation)
	assert.Equal("Không spam link", v.ViolatedRule)
	assert.Equal(verdict.SeverityMedium, v.Severity)
	assert.False(v.IsFakeAccountSuspected)
	assert.Equal(verdict.ActionDeleteMessage, v.RecommendedAction)
	assert.Equal("Tin nhắn chứa link quảng cáo", v.Reason)
}

func TestParseVerdictSingleLine(t *testing.T) {
	assert := assert.New(t)

	v, err := ParseVerdict("VIOLATION: Có / SEVERITY: Cao / ACTION: Ban")
	assert.NoError(err)
	assert.True(v.IsViolation)
	assert.Equal(verdict.NoRule, v.ViolatedRule)
	assert.Equal(verdict.SeverityHigh, v.Severity)
	assert.Equal(verdict.ActionBan, v.RecommendedAction)

	v, err = ParseVerdict("violation: yes / rule: 2 / severity: low / action: warn / reason: spam / quảng cáo")
	assert.NoError(err)
	assert.Equal("2", v.ViolatedRule)
	assert.Equal(verdict.SeverityLow, v.Severity)
	assert.Equal(verdict.ActionWarn, v.RecommendedAction)
	assert.Equal("spam / quảng cáo", v.Reason)
}

func TestParseVerdictAliases(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		raw      string
		severity verdict.Severity
		action   verdict.Action
		fake     bool
	}{
		{"VI_PHẠM: có\nMỨC_ĐỘ: nghiêm trọng\nHÀNH_ĐỘNG: cấm chat", verdict.SeverityHigh, verdict.ActionMute, false},
		{"**VIOLATION**: **Yes**\n**SEVERITY**: high\n**ACTION**: kick\nFAKE_ACCOUNT: Có", verdict.SeverityHigh, verdict.ActionKick, true},
		{"Violation：Có\nSeverity：thấp\nAction：cảnh báo", verdict.SeverityLow, verdict.ActionWarn, false},
		{"VIOLATION: Có\nSEVERITY: Cao\nACTION: Cấm vĩnh viễn", verdict.SeverityHigh, verdict.ActionBan, false},
		{"VIOLATION: Có\nSEVERITY: vừa\nACTION: timeout (10 phút)", verdict.SeverityMedium, verdict.ActionMute, false},
	}

	for _, tc := range testCases {
		v, err := ParseVerdict(tc.raw)
		assert.NoError(err, tc.raw)
		assert.True(v.IsViolation, tc.raw)
		assert.Equal(tc.severity, v.Severity, tc.raw)
		assert.Equal(tc.action, v.RecommendedAction, tc.raw)
		assert.Equal(tc.fake, v.IsFakeAccountSuspected, tc.raw)
	}
}

func TestParseVerdictNoViolation(t *testing.T) {
	assert := assert.New(t)

	v, err := ParseVerdict("VIOLATION: Không\nRULE: Không\nSEVERITY: Không\nFAKE_ACCOUNT: Có\nACTION: Không\nREASON: Tin nhắn bình thường")
	assert.NoError(err)
	assert.False(v.IsViolation)
	assert.Equal(verdict.NoRule, v.ViolatedRule)
	assert.Equal(verdict.SeverityNone, v.Severity)
	assert.Equal(verdict.ActionNone, v.RecommendedAction)
	assert.True(v.IsFakeAccountSuspected)
	assert.Equal("Tin nhắn bình thường", v.Reason)
}

func TestParseVerdictContinuationAndDuplicates(t *testing.T) {
	assert := assert.New(t)

	raw := "```\nVIOLATION: Có\nSEVERITY: Cao\nACTION: Ban\nREASON:\nDòng một\nDòng hai\nVIOLATION: Không\n```"
	v, err := ParseVerdict(raw)
	assert.NoError(err)
	assert.True(v.IsViolation)
	assert.Equal("Dòng một\nDòng hai", v.Reason)
}

func TestParseVerdictMalformed(t *testing.T) {
	assert := assert.New(t)

	for _, raw := range []string{
		"",
		"I cannot help with that.",
		"VIOLATION: maybe\nSEVERITY: Cao\nACTION: Ban",
		"VIOLATION: Có\nSEVERITY: Cao",
		"VIOLATION: Có\nSEVERITY: kinda\nACTION: Ban",
		"VIOLATION: Có\nSEVERITY: Cao\nACTION: explode",
	} {
		_, err := ParseVerdict(raw)
		assert.ErrorIs(err, ErrUnparseable, raw)
	}
}
