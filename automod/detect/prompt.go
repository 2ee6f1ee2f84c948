package detect

import (
	"fmt"
	"strings"

	"github.com/guildwarden/warden/automod/settings"
)

// Renders the workspace's classification prompt: message text replaces {{message}}, and the numbered rule list replaces {{rules}}.
func RenderPrompt(ms *settings.MonitorSettings, text string) string {
	var rules strings.Builder
	for i, r := range ms.Rules {
		fmt.Fprintf(&rules, "%d. %s\n", i+1, r)
	}
	// the message is substituted last, so placeholder-like text inside a message is never expanded
	out := strings.ReplaceAll(ms.PromptTemplate(), settings.RulesPlaceholder, strings.TrimRight(rules.String(), "\n"))
	return strings.ReplaceAll(out, settings.MessagePlaceholder, text)
}
