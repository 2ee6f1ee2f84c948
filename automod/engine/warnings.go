package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/guildwarden/warden/automod/verdict"
)

// Leading text of every in-channel warning. The ingress filter uses it to recognize the bot's own warnings.
const warningHeader = "🛡️ **AutoMod** |"

func WarningPrefixes() []string {
	return []string{warningHeader}
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func ruleLabel(rule string) string {
	if rule == "" || rule == verdict.NoRule {
		return "nội quy server"
	}
	return "\"" + rule + "\""
}

// In-channel warning text; wording scales with the enforced action
func warningText(userID string, v verdict.Verdict, action verdict.Action, muteDuration time.Duration) string {
	var b strings.Builder
	b.WriteString(warningHeader)
	b.WriteString(" ")
	who := mention(userID)
	rule := ruleLabel(v.ViolatedRule)
	switch action {
	case verdict.ActionDeleteMessage:
		fmt.Fprintf(&b, "🗑️ %s, tin nhắn của bạn đã bị xóa vì vi phạm %s.", who, rule)
	case verdict.ActionMute:
		fmt.Fprintf(&b, "🔇 %s đã bị tắt tiếng %d phút vì vi phạm %s.", who, int(muteDuration.Minutes()), rule)
	case verdict.ActionKick:
		fmt.Fprintf(&b, "👢 %s đã bị đuổi khỏi server vì vi phạm %s.", who, rule)
	case verdict.ActionBan:
		fmt.Fprintf(&b, "🔨 %s đã bị cấm khỏi server vì vi phạm %s.", who, rule)
	default:
		fmt.Fprintf(&b, "⚠️ %s, tin nhắn của bạn vi phạm %s. Vui lòng tuân thủ nội quy.", who, rule)
	}
	if v.Reason != "" {
		b.WriteString("\n> ")
		b.WriteString(defuseMentions(strings.ReplaceAll(v.Reason, "\n", " ")))
	}
	return b.String()
}

// Classifier reasons can quote the offending message. A zero-width space after "@" keeps any mention in them from rendering.
var mentionDefuser = strings.NewReplacer(
	"@everyone", "@\u200beveryone",
	"@here", "@\u200bhere",
	"<@", "<@\u200b",
)

func defuseMentions(s string) string {
	return mentionDefuser.Replace(s)
}
