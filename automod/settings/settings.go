// Per-workspace monitoring configuration, and the persistent "rule store" it lives in.
package settings

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guildwarden/warden/automod/verdict"
)

var (
	// returned (wrapped) for any configuration rejected at the admin boundary
	ErrInvalidConfig = errors.New("invalid monitor configuration")
	ErrNotFound      = errors.New("monitor settings not found")
)

// Placeholder substituted with the message text when rendering the classification prompt
const MessagePlaceholder = "{{message}}"

// Placeholder substituted with the numbered rule list when rendering the classification prompt
const RulesPlaceholder = "{{rules}}"

const (
	LogTypeMonitor    = "monitor"
	LogTypeModeration = "moderation"
)

type RuleAction struct {
	Action verdict.Action `json:"action"`
}

type LogChannel struct {
	ChannelID string `json:"channelId"`
	Enabled   bool   `json:"enabled"`
}

// Monitoring configuration for a single workspace. There is at most one record per workspace.
//
// Disabling is a soft flag: the record stays readable (and cached) when Enabled is false.
type MonitorSettings struct {
	WorkspaceID string `gorm:"primaryKey"`
	Enabled     bool   `gorm:"index"`
	// Ordered rule statements. Order is priority order, and 1-based position is the "rule index" used in overrides.
	Rules []string `gorm:"serializer:json"`
	// Keyed by exact rule text, or by 1-based rule index as a decimal string
	RuleActions                  map[string]RuleAction `gorm:"serializer:json"`
	ClassificationPromptTemplate string
	IgnoredChannels              []string              `gorm:"serializer:json"`
	IgnoredRoles                 []string              `gorm:"serializer:json"`
	LogChannels                  map[string]LogChannel `gorm:"serializer:json"`
	EnabledAt                    *time.Time
	EnabledBy                    string
	DisabledAt                   *time.Time
	DisabledBy                   string
	UpdatedAt                    time.Time
}

func (MonitorSettings) TableName() string {
	return "monitor_settings"
}

// Deep copy. Cached records are shared between goroutines and must never be mutated in place; callers copy, modify, and replace.
func (s *MonitorSettings) Clone() *MonitorSettings {
	out := *s
	out.Rules = slices.Clone(s.Rules)
	out.RuleActions = maps.Clone(s.RuleActions)
	out.IgnoredChannels = slices.Clone(s.IgnoredChannels)
	out.IgnoredRoles = slices.Clone(s.IgnoredRoles)
	out.LogChannels = maps.Clone(s.LogChannels)
	if s.EnabledAt != nil {
		t := *s.EnabledAt
		out.EnabledAt = &t
	}
	if s.DisabledAt != nil {
		t := *s.DisabledAt
		out.DisabledAt = &t
	}
	return &out
}

func (s *MonitorSettings) IsChannelIgnored(channelID string) bool {
	return slices.Contains(s.IgnoredChannels, channelID)
}

func (s *MonitorSettings) PromptTemplate() string {
	if strings.TrimSpace(s.ClassificationPromptTemplate) == "" {
		return DefaultPromptTemplate
	}
	return s.ClassificationPromptTemplate
}

// numbered-list echo of a rule: "2. text", "2) text", "#2 text", "#2: text"
var numberedRuleRef = regexp.MustCompile(`^(?:#\s*(\d+)[.):]?|(\d+)[.)])\s*(.*)$`)

// Maps a rule reference to the canonical rule text and its 1-based index. Accepts exact text, case-insensitive text, a bare index like "2" or "#2", or a numbered line like "2. text" as rendered in the prompt. For a numbered line whose text names a different rule, the text wins.
func (s *MonitorSettings) ResolveRule(ref string) (string, int, bool) {
	ref = strings.Trim(strings.TrimSpace(ref), "\"'“”")
	if ref == "" {
		return "", 0, false
	}
	if text, idx, ok := s.matchRuleText(ref); ok {
		return text, idx, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err == nil && n >= 1 && n <= len(s.Rules) {
		return s.Rules[n-1], n, true
	}
	if m := numberedRuleRef.FindStringSubmatch(ref); m != nil {
		rest := strings.Trim(strings.TrimSpace(m[3]), "\"'“”")
		if rest != "" {
			if text, idx, ok := s.matchRuleText(rest); ok {
				return text, idx, true
			}
		}
		num := m[1]
		if num == "" {
			num = m[2]
		}
		if n, err := strconv.Atoi(num); err == nil && n >= 1 && n <= len(s.Rules) {
			return s.Rules[n-1], n, true
		}
	}
	return "", 0, false
}

func (s *MonitorSettings) matchRuleText(ref string) (string, int, bool) {
	if idx := slices.Index(s.Rules, ref); idx >= 0 {
		return s.Rules[idx], idx + 1, true
	}
	for i, r := range s.Rules {
		if strings.EqualFold(strings.TrimSpace(r), ref) {
			return r, i + 1, true
		}
	}
	return "", 0, false
}

// Returns the configured override action for the given rule, checking exact rule text first and then the rule's index.
func (s *MonitorSettings) RuleActionFor(rule string) (verdict.Action, bool) {
	if len(s.RuleActions) == 0 {
		return "", false
	}
	if ra, ok := s.RuleActions[rule]; ok {
		return ra.Action, true
	}
	if _, idx, ok := s.ResolveRule(rule); ok {
		if ra, ok := s.RuleActions[strconv.Itoa(idx)]; ok {
			return ra.Action, true
		}
	}
	return "", false
}

// Channel id configured for the given log type, if any and enabled
func (s *MonitorSettings) LogChannelFor(logType string) (string, bool) {
	lc, ok := s.LogChannels[logType]
	if !ok || !lc.Enabled || lc.ChannelID == "" {
		return "", false
	}
	return lc.ChannelID, true
}

// Checks the record is usable by the detection pipeline. Errors wrap ErrInvalidConfig.
func (s *MonitorSettings) Validate() error {
	if s.WorkspaceID == "" {
		return fmt.Errorf("%w: missing workspace id", ErrInvalidConfig)
	}
	if s.Enabled && len(s.Rules) == 0 {
		return fmt.Errorf("%w: rule list is empty", ErrInvalidConfig)
	}
	for i, r := range s.Rules {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: rule %d is blank", ErrInvalidConfig, i+1)
		}
	}
	for key, ra := range s.RuleActions {
		if _, _, ok := s.ResolveRule(key); !ok {
			return fmt.Errorf("%w: rule action references unknown rule %q", ErrInvalidConfig, key)
		}
		if _, err := verdict.ParseAction(string(ra.Action)); err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidConfig, key, err)
		}
	}
	if s.ClassificationPromptTemplate != "" && !strings.Contains(s.ClassificationPromptTemplate, MessagePlaceholder) {
		return fmt.Errorf("%w: prompt template lacks %s placeholder", ErrInvalidConfig, MessagePlaceholder)
	}
	return nil
}
