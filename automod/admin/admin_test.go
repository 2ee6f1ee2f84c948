package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/flagstore"
	"github.com/guildwarden/warden/automod/registry"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() (*Service, *registry.CachedRegistry) {
	store := settings.NewMemStore()
	reg := registry.NewCachedRegistry(store, slog.Default())
	return &Service{
		Store:    store,
		Registry: reg,
		Audit:    auditlog.NewMemStore(),
		Cache:    cachestore.NewMemCacheStore(10, time.Hour),
		Logger:   slog.Default(),
	}, reg
}

func TestEnableDisable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, reg := testService()

	_, err := svc.Enable(ctx, "ws1", []string{" ", ""}, "mod1")
	assert.ErrorIs(err, settings.ErrInvalidConfig)
	_, ok := reg.Get("ws1")
	assert.False(ok)

	ms, err := svc.Enable(ctx, "ws1", []string{"Không spam", " không chat s4ory "}, "mod1")
	require.NoError(t, err)
	assert.Equal([]string{"Không spam", "không chat s4ory"}, ms.Rules)

	cached, ok := reg.Get("ws1")
	require.True(t, ok)
	assert.True(cached.Enabled)
	assert.Equal("mod1", cached.EnabledBy)

	_, err = svc.Disable(ctx, "ws1", "mod2")
	require.NoError(t, err)
	cached, ok = reg.Get("ws1")
	require.True(t, ok)
	assert.False(cached.Enabled)
	assert.Equal("mod2", cached.DisabledBy)
	// disabling keeps the record readable
	stored, err := svc.Settings(ctx, "ws1")
	require.NoError(t, err)
	assert.Len(stored.Rules, 2)

	// re-enable without rules keeps the stored ones
	ms, err = svc.Enable(ctx, "ws1", nil, "mod1")
	require.NoError(t, err)
	assert.Len(ms.Rules, 2)

	_, err = svc.Disable(ctx, "ws-missing", "mod1")
	assert.ErrorIs(err, settings.ErrNotFound)
}

func TestConfigureRuleAction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, reg := testService()

	_, err := svc.Enable(ctx, "ws1", []string{"Không spam", "Không xúc phạm"}, "mod1")
	require.NoError(t, err)

	_, err = svc.ConfigureRuleAction(ctx, "ws1", "3", verdict.ActionBan)
	assert.ErrorIs(err, settings.ErrInvalidConfig)
	_, err = svc.ConfigureRuleAction(ctx, "ws1", "1", verdict.Action("explode"))
	assert.ErrorIs(err, settings.ErrInvalidConfig)

	_, err = svc.ConfigureRuleAction(ctx, "ws1", "#2", verdict.ActionBan)
	require.NoError(t, err)
	ms, _ := reg.Get("ws1")
	assert.Equal(map[string]settings.RuleAction{"2": {Action: verdict.ActionBan}}, ms.RuleActions)

	// re-keying by text replaces the index override
	_, err = svc.ConfigureRuleAction(ctx, "ws1", "không xúc phạm", verdict.ActionKick)
	require.NoError(t, err)
	ms, _ = reg.Get("ws1")
	assert.Equal(map[string]settings.RuleAction{"Không xúc phạm": {Action: verdict.ActionKick}}, ms.RuleActions)

	_, err = svc.ConfigureRuleAction(ctx, "ws1", "2", "")
	require.NoError(t, err)
	ms, _ = reg.Get("ws1")
	assert.Empty(ms.RuleActions)

	// overrides for rules which disappear are dropped on re-enable
	_, err = svc.ConfigureRuleAction(ctx, "ws1", "2", verdict.ActionMute)
	require.NoError(t, err)
	ms, err = svc.Enable(ctx, "ws1", []string{"Chỉ một quy tắc"}, "mod1")
	require.NoError(t, err)
	assert.Empty(ms.RuleActions)
}

func TestIgnoredAndPrompt(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, reg := testService()

	// configuring before enabling creates a disabled record
	_, err := svc.SetIgnoredChannel(ctx, "ws1", "c1", true)
	require.NoError(t, err)
	_, err = svc.SetIgnoredChannel(ctx, "ws1", "c1", true)
	require.NoError(t, err)
	_, err = svc.SetIgnoredRole(ctx, "ws1", "r1", true)
	require.NoError(t, err)
	ms, ok := reg.Get("ws1")
	require.True(t, ok)
	assert.False(ms.Enabled)
	assert.Equal([]string{"c1"}, ms.IgnoredChannels)
	assert.Equal([]string{"r1"}, ms.IgnoredRoles)

	_, err = svc.SetIgnoredChannel(ctx, "ws1", "c1", false)
	require.NoError(t, err)
	ms, _ = reg.Get("ws1")
	assert.Empty(ms.IgnoredChannels)

	_, err = svc.SetPromptTemplate(ctx, "ws1", "Phân loại: nothing here")
	assert.ErrorIs(err, settings.ErrInvalidConfig)
	_, err = svc.SetPromptTemplate(ctx, "ws1", "Quy tắc:\n{{rules}}\nTin nhắn: {{message}}")
	require.NoError(t, err)
	ms, _ = reg.Get("ws1")
	assert.Contains(ms.PromptTemplate(), "Tin nhắn: {{message}}")
}

func TestSetLogChannelPurgesCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, reg := testService()

	require.NoError(t, svc.Cache.Set(ctx, cachestore.NameAuditChannel, "ws1", "old-channel"))

	_, err := svc.SetLogChannel(ctx, "ws1", "bogus", "c1", true)
	assert.ErrorIs(err, settings.ErrInvalidConfig)

	_, err = svc.SetLogChannel(ctx, "ws1", settings.LogTypeMonitor, "c9", true)
	require.NoError(t, err)
	v, _ := svc.Cache.Get(ctx, cachestore.NameAuditChannel, "ws1")
	assert.Empty(v)
	ms, _ := reg.Get("ws1")
	id, ok := ms.LogChannelFor(settings.LogTypeMonitor)
	assert.True(ok)
	assert.Equal("c9", id)

	// disabling keeps the channel id
	_, err = svc.SetLogChannel(ctx, "ws1", settings.LogTypeMonitor, "", false)
	require.NoError(t, err)
	ms, _ = reg.Get("ws1")
	_, ok = ms.LogChannelFor(settings.LogTypeMonitor)
	assert.False(ok)
	assert.Equal("c9", ms.LogChannels[settings.LogTypeMonitor].ChannelID)
}

type failingRegistry struct {
	registry.Registry
}

func (failingRegistry) Set(ctx context.Context, ms *settings.MonitorSettings) error {
	return errors.New("database is locked")
}

func TestCommitFailureSurfaces(t *testing.T) {
	svc, reg := testService()
	svc.Registry = failingRegistry{Registry: reg}

	_, err := svc.Enable(context.Background(), "ws1", []string{"Không spam"}, "mod1")
	assert.Error(t, err)
	_, ok := reg.Get("ws1")
	assert.False(t, ok)
}

func TestManualActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, _ := testService()

	dur := 30
	assert.NoError(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: "MUTE", DurationMinutes: &dur, Reason: "spam",
	}))
	count := 25
	assert.NoError(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u2", ModeratorID: "mod1", Action: verdict.ActionDeleteMessage, Count: &count,
	}))

	assert.ErrorIs(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: verdict.ActionKick, DurationMinutes: &dur,
	}), settings.ErrInvalidConfig)
	assert.ErrorIs(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", Action: verdict.ActionKick,
	}), settings.ErrInvalidConfig)

	acts, err := svc.Actions(ctx, "ws1", auditlog.Filter{Action: verdict.ActionMute}, 10)
	assert.NoError(err)
	if assert.Len(acts, 1) {
		assert.Equal("u1", acts[0].TargetUserID)
	}
	acts, err = svc.Actions(ctx, "ws1", auditlog.Filter{}, 10)
	assert.NoError(err)
	assert.Len(acts, 2)

	vl, err := svc.Violations(ctx, "ws1", auditlog.Filter{}, 10)
	assert.NoError(err)
	assert.Empty(vl)
}

func TestManualOnlyActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, _ := testService()

	count := 40
	assert.NoError(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: "Clear", Count: &count,
	}))
	assert.NoError(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: verdict.ActionUnmute,
	}))
	assert.NoError(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: verdict.ActionUnban, Reason: "appeal accepted",
	}))

	dur := 5
	assert.ErrorIs(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: verdict.ActionUnmute, DurationMinutes: &dur,
	}), settings.ErrInvalidConfig)
	assert.ErrorIs(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: verdict.ActionUnban, Count: &count,
	}), settings.ErrInvalidConfig)
	neg := -1
	assert.ErrorIs(svc.RecordManualAction(ctx, &auditlog.ModerationActionLogEntry{
		WorkspaceID: "ws1", TargetUserID: "u1", ModeratorID: "mod1", Action: verdict.ActionClear, Count: &neg,
	}), settings.ErrInvalidConfig)

	acts, err := svc.Actions(ctx, "ws1", auditlog.Filter{Action: verdict.ActionClear}, 10)
	assert.NoError(err)
	if assert.Len(acts, 1) {
		assert.Equal(verdict.ActionClear, acts[0].Action)
		assert.Equal(40, *acts[0].Count)
	}

	// rules can never be configured with a manual-only action
	_, err = svc.Enable(ctx, "ws1", []string{"Không spam link"}, "mod1")
	require.NoError(t, err)
	_, err = svc.ConfigureRuleAction(ctx, "ws1", "1", verdict.ActionUnban)
	assert.ErrorIs(err, settings.ErrInvalidConfig)
}

func TestMemberAndStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	svc, _ := testService()

	// without counters or flags the reports are empty, not errors
	rep, err := svc.Member(ctx, "ws1", "u1")
	require.NoError(t, err)
	assert.Empty(rep.Flags)
	assert.Empty(rep.Violations)

	counters := countstore.NewMemCountStore()
	flags := flagstore.NewMemFlagStore()
	svc.Counters = counters
	svc.Flags = flags

	key := countstore.MemberKey("ws1", "u1")
	require.NoError(t, flags.Add(ctx, key, []string{flagstore.FlagSuspectedFake}))
	for range 3 {
		require.NoError(t, counters.Increment(ctx, countstore.CounterViolation, key))
	}
	require.NoError(t, counters.IncrementDistinct(ctx, countstore.CounterViolators, "ws1", "u1"))
	require.NoError(t, counters.IncrementDistinct(ctx, countstore.CounterViolators, "ws1", "u2"))
	require.NoError(t, counters.IncrementDistinct(ctx, countstore.CounterViolators, "ws2", "u3"))
	require.NoError(t, counters.Increment(ctx, countstore.CounterAction, countstore.ActionKey("ws1", verdict.ActionKick)))

	rep, err = svc.Member(ctx, "ws1", "u1")
	require.NoError(t, err)
	assert.Equal([]string{flagstore.FlagSuspectedFake}, rep.Flags)
	assert.Equal(3, rep.Violations[countstore.PeriodTotal])
	assert.Equal(3, rep.Violations[countstore.PeriodHour])

	st, err := svc.Stats(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(2, st.Violators[countstore.PeriodDay])
	assert.Equal(1, st.Actions[verdict.ActionKick][countstore.PeriodTotal])
	assert.NotContains(st.Actions, verdict.ActionNone)

	assert.ErrorIs(svc.ClearMemberFlags(ctx, "ws1", "u1", nil), settings.ErrInvalidConfig)
	require.NoError(t, svc.ClearMemberFlags(ctx, "ws1", "u1", []string{flagstore.FlagSuspectedFake}))
	rep, err = svc.Member(ctx, "ws1", "u1")
	require.NoError(t, err)
	assert.Empty(rep.Flags)

	_, err = svc.Member(ctx, "ws1", "")
	assert.ErrorIs(err, settings.ErrInvalidConfig)
}

// a settings store with database-like latency between read and write
type slowStore struct {
	settings.Store
}

func (s slowStore) FindOne(ctx context.Context, workspaceID string) (*settings.MonitorSettings, error) {
	ms, err := s.Store.FindOne(ctx, workspaceID)
	time.Sleep(2 * time.Millisecond)
	return ms, err
}

func TestConcurrentEditsSameWorkspace(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := slowStore{Store: settings.NewMemStore()}
	reg := registry.NewCachedRegistry(store, slog.Default())
	svc := &Service{
		Store:    store,
		Registry: reg,
		Audit:    auditlog.NewMemStore(),
		Logger:   slog.Default(),
	}
	_, err := svc.Enable(ctx, "ws1", []string{"Không spam link", "Không chửi thề"}, "mod1")
	require.NoError(err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SetIgnoredChannel(ctx, "ws1", fmt.Sprintf("chan-%d", i), true)
			assert.NoError(err)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.ConfigureRuleAction(ctx, "ws1", "2", verdict.ActionBan)
		assert.NoError(err)
	}()
	wg.Wait()

	ms, err := svc.Settings(ctx, "ws1")
	require.NoError(err)
	assert.Len(ms.IgnoredChannels, 20)
	act, ok := ms.RuleActionFor("Không chửi thề")
	assert.True(ok)
	assert.Equal(verdict.ActionBan, act)

	cached, ok := reg.Get("ws1")
	require.True(ok)
	assert.Len(cached.IgnoredChannels, 20)
}
