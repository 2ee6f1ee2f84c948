// Administrative operations on workspace monitoring: enable, disable, configure, and reporting queries.
//
// All configuration is validated here, at the boundary, so invalid settings never reach the detection pipeline. Every mutation replaces the whole settings record through the registry, which persists it before swapping it in to the cache.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/flagstore"
	"github.com/guildwarden/warden/automod/registry"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"

	"github.com/puzpuzpuz/xsync/v3"
)

type Service struct {
	Store    settings.Store
	Registry registry.Registry
	Audit    auditlog.Store
	// optional; purged when log channels change
	Cache cachestore.CacheStore
	// optional; member and workspace reports come back empty without them
	Counters countstore.CountStore
	Flags    flagstore.FlagStore
	Logger   *slog.Logger

	locksOnce sync.Once
	locks     *xsync.MapOf[string, *sync.Mutex]
}

// Serializes read-modify-write of one workspace's settings. Returns the unlock function.
func (s *Service) lock(workspaceID string) func() {
	s.locksOnce.Do(func() {
		s.locks = xsync.NewMapOf[string, *sync.Mutex]()
	})
	mu, _ := s.locks.LoadOrCompute(workspaceID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

// current record, or a fresh disabled one if the workspace was never configured
func (s *Service) current(ctx context.Context, workspaceID string) (*settings.MonitorSettings, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("%w: missing workspace id", settings.ErrInvalidConfig)
	}
	ms, err := s.Store.FindOne(ctx, workspaceID)
	if errors.Is(err, settings.ErrNotFound) {
		return &settings.MonitorSettings{WorkspaceID: workspaceID}, nil
	}
	if err != nil {
		return nil, err
	}
	return ms.Clone(), nil
}

func (s *Service) commit(ctx context.Context, ms *settings.MonitorSettings) (*settings.MonitorSettings, error) {
	if err := ms.Validate(); err != nil {
		return nil, err
	}
	if err := s.Registry.Set(ctx, ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func cleanRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Turns monitoring on. A non-empty rule list replaces the stored one; an empty list keeps the existing rules. Rule action overrides which no longer resolve are dropped.
func (s *Service) Enable(ctx context.Context, workspaceID string, rules []string, by string) (*settings.MonitorSettings, error) {
	defer s.lock(workspaceID)()
	ms, err := s.current(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if rules = cleanRules(rules); len(rules) > 0 {
		ms.Rules = rules
		for key := range ms.RuleActions {
			if _, _, ok := ms.ResolveRule(key); !ok {
				delete(ms.RuleActions, key)
			}
		}
	}
	now := time.Now().UTC()
	ms.Enabled = true
	ms.EnabledAt = &now
	ms.EnabledBy = by
	s.Logger.Info("enabling workspace monitoring", "workspace", workspaceID, "by", by, "rules", len(ms.Rules))
	return s.commit(ctx, ms)
}

func (s *Service) Disable(ctx context.Context, workspaceID, by string) (*settings.MonitorSettings, error) {
	defer s.lock(workspaceID)()
	ms, err := s.Store.FindOne(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	ms = ms.Clone()
	now := time.Now().UTC()
	ms.Enabled = false
	ms.DisabledAt = &now
	ms.DisabledBy = by
	s.Logger.Info("disabling workspace monitoring", "workspace", workspaceID, "by", by)
	return s.commit(ctx, ms)
}

// Sets the override action for a rule, referenced by exact text or 1-based index. An empty action clears the override.
func (s *Service) ConfigureRuleAction(ctx context.Context, workspaceID, rule string, action verdict.Action) (*settings.MonitorSettings, error) {
	defer s.lock(workspaceID)()
	ms, err := s.current(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	canonical, idx, ok := ms.ResolveRule(rule)
	if !ok {
		return nil, fmt.Errorf("%w: unknown rule %q", settings.ErrInvalidConfig, rule)
	}
	// numeric references stay index-keyed, so they follow the position rather than the wording
	key := canonical
	if _, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(rule), "#")); err == nil {
		key = strconv.Itoa(idx)
	}
	if ms.RuleActions == nil {
		ms.RuleActions = make(map[string]settings.RuleAction)
	}
	// only one override per rule, whichever way it was keyed
	delete(ms.RuleActions, canonical)
	delete(ms.RuleActions, strconv.Itoa(idx))
	if action != "" {
		a, err := verdict.ParseAction(string(action))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", settings.ErrInvalidConfig, err)
		}
		ms.RuleActions[key] = settings.RuleAction{Action: a}
	}
	return s.commit(ctx, ms)
}

func toggle(list []string, id string, on bool) []string {
	list = slices.DeleteFunc(slices.Clone(list), func(v string) bool { return v == id })
	if on {
		list = append(list, id)
	}
	return list
}

func (s *Service) SetIgnoredChannel(ctx context.Context, workspaceID, channelID string, ignored bool) (*settings.MonitorSettings, error) {
	if channelID == "" {
		return nil, fmt.Errorf("%w: missing channel id", settings.ErrInvalidConfig)
	}
	defer s.lock(workspaceID)()
	ms, err := s.current(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	ms.IgnoredChannels = toggle(ms.IgnoredChannels, channelID, ignored)
	return s.commit(ctx, ms)
}

func (s *Service) SetIgnoredRole(ctx context.Context, workspaceID, roleID string, ignored bool) (*settings.MonitorSettings, error) {
	if roleID == "" {
		return nil, fmt.Errorf("%w: missing role id", settings.ErrInvalidConfig)
	}
	defer s.lock(workspaceID)()
	ms, err := s.current(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	ms.IgnoredRoles = toggle(ms.IgnoredRoles, roleID, ignored)
	return s.commit(ctx, ms)
}

// An empty template restores the default prompt
func (s *Service) SetPromptTemplate(ctx context.Context, workspaceID, tpl string) (*settings.MonitorSettings, error) {
	defer s.lock(workspaceID)()
	ms, err := s.current(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	ms.ClassificationPromptTemplate = strings.TrimSpace(tpl)
	return s.commit(ctx, ms)
}

func (s *Service) SetLogChannel(ctx context.Context, workspaceID, logType, channelID string, enabled bool) (*settings.MonitorSettings, error) {
	if logType != settings.LogTypeMonitor && logType != settings.LogTypeModeration {
		return nil, fmt.Errorf("%w: unknown log type %q", settings.ErrInvalidConfig, logType)
	}
	if enabled && channelID == "" {
		return nil, fmt.Errorf("%w: missing channel id", settings.ErrInvalidConfig)
	}
	defer s.lock(workspaceID)()
	ms, err := s.current(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ms.LogChannels == nil {
		ms.LogChannels = make(map[string]settings.LogChannel)
	}
	if channelID == "" {
		channelID = ms.LogChannels[logType].ChannelID
	}
	ms.LogChannels[logType] = settings.LogChannel{ChannelID: channelID, Enabled: enabled}
	out, err := s.commit(ctx, ms)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Purge(ctx, cachestore.NameAuditChannel, workspaceID); err != nil {
			s.Logger.Warn("failed to purge audit channel cache", "workspace", workspaceID, "err", err)
		}
	}
	return out, nil
}

// Persists an action taken by a human moderator through a separate command
func (s *Service) RecordManualAction(ctx context.Context, entry *auditlog.ModerationActionLogEntry) error {
	if entry.WorkspaceID == "" || entry.TargetUserID == "" || entry.ModeratorID == "" {
		return fmt.Errorf("%w: workspace, target and moderator are required", settings.ErrInvalidConfig)
	}
	a, err := verdict.ParseManualAction(string(entry.Action))
	if err != nil {
		return fmt.Errorf("%w: %v", settings.ErrInvalidConfig, err)
	}
	entry.Action = a
	if entry.DurationMinutes != nil && (a != verdict.ActionMute || *entry.DurationMinutes <= 0) {
		return fmt.Errorf("%w: duration only applies to a positive-length mute", settings.ErrInvalidConfig)
	}
	if entry.Count != nil && (a != verdict.ActionClear || *entry.Count < 0) {
		return fmt.Errorf("%w: count only applies to a clear, and cannot be negative", settings.ErrInvalidConfig)
	}
	return s.Audit.AppendAction(ctx, entry)
}

func (s *Service) Settings(ctx context.Context, workspaceID string) (*settings.MonitorSettings, error) {
	return s.Store.FindOne(ctx, workspaceID)
}

func (s *Service) Violations(ctx context.Context, workspaceID string, filter auditlog.Filter, limit int) ([]auditlog.ViolationLogEntry, error) {
	return s.Audit.QueryViolations(ctx, workspaceID, filter, limit)
}

func (s *Service) Actions(ctx context.Context, workspaceID string, filter auditlog.Filter, limit int) ([]auditlog.ModerationActionLogEntry, error) {
	return s.Audit.QueryActions(ctx, workspaceID, filter, limit)
}

// What the pipeline remembers about one workspace member
type MemberReport struct {
	WorkspaceID string   `json:"workspaceId"`
	UserID      string   `json:"userId"`
	Flags       []string `json:"flags"`
	// violation counts keyed by period: total, day, hour
	Violations map[string]int `json:"violations"`
}

func (s *Service) Member(ctx context.Context, workspaceID, userID string) (*MemberReport, error) {
	if workspaceID == "" || userID == "" {
		return nil, fmt.Errorf("%w: workspace and user are required", settings.ErrInvalidConfig)
	}
	key := countstore.MemberKey(workspaceID, userID)
	rep := &MemberReport{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Flags:       []string{},
		Violations:  map[string]int{},
	}
	if s.Flags != nil {
		flags, err := s.Flags.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if flags != nil {
			rep.Flags = flags
		}
	}
	if s.Counters != nil {
		for _, period := range reportPeriods {
			c, err := s.Counters.GetCount(ctx, countstore.CounterViolation, key, period)
			if err != nil {
				return nil, err
			}
			rep.Violations[period] = c
		}
	}
	return rep, nil
}

// Removes private flags from a member, for example after a moderator vouches for a new account
func (s *Service) ClearMemberFlags(ctx context.Context, workspaceID, userID string, flags []string) error {
	if workspaceID == "" || userID == "" || len(flags) == 0 {
		return fmt.Errorf("%w: workspace, user and flags are required", settings.ErrInvalidConfig)
	}
	if s.Flags == nil {
		return nil
	}
	return s.Flags.Remove(ctx, countstore.MemberKey(workspaceID, userID), flags)
}

var reportPeriods = []string{countstore.PeriodTotal, countstore.PeriodDay, countstore.PeriodHour}

// Workspace totals, keyed by period
type WorkspaceStats struct {
	WorkspaceID string `json:"workspaceId"`
	// distinct members with at least one violation
	Violators map[string]int `json:"violators"`
	// enforced actions, per action then per period
	Actions map[verdict.Action]map[string]int `json:"actions"`
}

func (s *Service) Stats(ctx context.Context, workspaceID string) (*WorkspaceStats, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: missing workspace id", settings.ErrInvalidConfig)
	}
	st := &WorkspaceStats{
		WorkspaceID: workspaceID,
		Violators:   map[string]int{},
		Actions:     map[verdict.Action]map[string]int{},
	}
	if s.Counters == nil {
		return st, nil
	}
	for _, period := range reportPeriods {
		c, err := s.Counters.GetCountDistinct(ctx, countstore.CounterViolators, workspaceID, period)
		if err != nil {
			return nil, err
		}
		st.Violators[period] = c
	}
	for _, a := range verdict.AllActions {
		if a == verdict.ActionNone {
			continue
		}
		st.Actions[a] = map[string]int{}
		for _, period := range reportPeriods {
			c, err := s.Counters.GetCount(ctx, countstore.CounterAction, countstore.ActionKey(workspaceID, a), period)
			if err != nil {
				return nil, err
			}
			st.Actions[a][period] = c
		}
	}
	return st, nil
}
