// Cheap, synchronous checks which discard messages that cannot be violations, before any detection work runs.
package ingress

import (
	"strings"

	"github.com/guildwarden/warden/automod/event"
	"github.com/guildwarden/warden/automod/registry"
	"github.com/guildwarden/warden/automod/settings"

	"github.com/rivo/uniseg"
)

// Why a message was discarded. Empty means the message passed every check.
type SkipReason string

const (
	Pass            SkipReason = ""
	SkipBotAuthor   SkipReason = "bot-author"
	SkipTooShort    SkipReason = "too-short"
	SkipUnmonitored SkipReason = "unmonitored"
	SkipDisabled    SkipReason = "disabled"
	SkipIgnored     SkipReason = "ignored"
	SkipCommand     SkipReason = "command"
	SkipMention     SkipReason = "mention"
	SkipOwnWarning  SkipReason = "own-warning"
)

const DefaultMinLength = 5

var DefaultCommandPrefixes = []string{"/"}

type Filter struct {
	Registry registry.Registry
	// Platform user id of this bot
	BotID string
	// Messages with fewer user-perceived characters (grapheme clusters) than this, after trimming whitespace, are skipped
	MinLength       int
	CommandPrefixes []string
	// Leading text of every warning message this bot posts
	WarningPrefixes []string
}

// Runs the checks in a fixed order: boolean checks on the event and cached settings first, then the checks that scan message text against templates.
//
// Returns the workspace settings when the message passes.
func (f *Filter) Admit(msg *event.MessageEvent) (*settings.MonitorSettings, SkipReason) {
	if msg.IsBotAuthor || (f.BotID != "" && msg.AuthorID == f.BotID) {
		return nil, SkipBotAuthor
	}
	text := strings.TrimSpace(msg.Text)
	minLen := f.MinLength
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	if charCount(text) < minLen {
		return nil, SkipTooShort
	}

	ms, ok := f.Registry.Get(msg.WorkspaceID)
	if !ok {
		return nil, SkipUnmonitored
	}
	if !ms.Enabled {
		return nil, SkipDisabled
	}

	if ms.IsChannelIgnored(msg.ChannelID) || msg.HasAnyRole(ms.IgnoredRoles) {
		return nil, SkipIgnored
	}

	prefixes := f.CommandPrefixes
	if prefixes == nil {
		prefixes = DefaultCommandPrefixes
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return nil, SkipCommand
		}
	}

	// directed chat is handled by the conversational path, not passive monitoring
	if msg.MentionsBot {
		return nil, SkipMention
	}

	for _, p := range f.WarningPrefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return nil, SkipOwnWarning
		}
	}

	return ms, Pass
}

// user-perceived characters, so combining diacritics and emoji sequences count once
func charCount(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}
