package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/event"
	"github.com/guildwarden/warden/automod/flagstore"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordWarn(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("s4ory là ai")))

	assert.Equal(0, tf.Classifier.Calls)
	assert.Equal(0, tf.Platform.CallCount("delete"))
	warnings := tf.Platform.Messages["chan-general"]
	if assert.Len(warnings, 1) {
		assert.Contains(warnings[0], "<@user1>")
		assert.True(strings.HasPrefix(warnings[0], warningHeader))
	}

	vl, err := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, vl, 1)
	assert.Equal("không chat s4ory", vl[0].ViolatedRule)
	assert.Equal(verdict.ActionWarn, vl[0].ResolvedAction)
	assert.Equal(verdict.SeverityMedium, vl[0].Severity)
	assert.Equal("keyword", vl[0].DetectionTier)

	// a warning is not a moderation action
	al, err := tf.Audit.QueryActions(ctx, "ws1", auditlog.Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(al)

	// audit embed went to the conventionally named channel
	if assert.Len(tf.Platform.Embeds["chan-modlog"], 1) {
		assert.Equal(colorWarn, tf.Platform.Embeds["chan-modlog"][0].Color)
	}
}

func TestDisabledWorkspace(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	ms, ok := tf.Registry.Get("ws1")
	require.True(t, ok)
	ms = ms.Clone()
	ms.Enabled = false
	require.NoError(t, tf.Registry.Set(ctx, ms))

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("s4ory là ai")))
	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("một tin nhắn bình thường khác")))

	assert.Equal(0, tf.Classifier.Calls)
	assert.Empty(tf.Platform.Calls)
	vl, _ := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	assert.Empty(vl)
}

func TestClassifierBan(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Classifier.Reply = "VIOLATION: Có / SEVERITY: Cao / ACTION: Ban"

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("nội dung cực kỳ độc hại")))

	assert.Equal(1, tf.Classifier.Calls)
	assert.Equal(1, tf.Platform.CallCount("delete"))
	assert.Equal(1, tf.Platform.CallCount("ban"))
	assert.Equal(24*time.Hour, tf.Platform.Bans["user1"])

	vl, _ := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	if assert.Len(vl, 1) {
		assert.Equal(verdict.ActionBan, vl[0].ResolvedAction)
		assert.Equal("VIOLATION: Có / SEVERITY: Cao / ACTION: Ban", vl[0].RawClassifierOutput)
	}
	al, _ := tf.Audit.QueryActions(ctx, "ws1", auditlog.Filter{}, 0)
	if assert.Len(al, 1) {
		assert.Equal(verdict.ActionBan, al[0].Action)
		assert.Equal("user1", al[0].TargetUserID)
		assert.Equal(TestBotID, al[0].ModeratorID)
	}
}

func TestClassifierNetworkError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Classifier.Err = errors.New("dial tcp: connection refused")

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("xin chào mọi người")))

	assert.Equal(1, tf.Classifier.Calls)
	assert.Empty(tf.Platform.Calls)
	vl, _ := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	assert.Empty(vl)

	// clean verdicts are persisted only when asked for
	tf.Engine.LogAllVerdicts = true
	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("xin chào mọi người")))
	vl, _ = tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	if assert.Len(vl, 1) {
		assert.False(vl[0].IsViolation)
		assert.Contains(vl[0].Reason, "connection refused")
	}
	assert.Empty(tf.Platform.Calls)
}

func TestMuteWithPermissionFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Classifier.Reply = "VIOLATION: Có\nRULE: 2\nSEVERITY: Trung bình\nACTION: Mute\nREASON: spam link"
	tf.Platform.Errors["timeout"] = fmt.Errorf("missing permissions: %w", ErrPermissionDenied)
	tf.Platform.Errors["delete"] = errors.New("unknown message")

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("mua ngay tại link này")))

	// every step was still attempted
	assert.Equal(1, tf.Platform.CallCount("send"))
	assert.Equal(1, tf.Platform.CallCount("delete"))
	assert.Equal(1, tf.Platform.CallCount("timeout"))

	// violation embed plus a distinct failure notice
	embeds := tf.Platform.Embeds["chan-modlog"]
	if assert.Len(embeds, 2) {
		assert.Equal(colorFailure, embeds[0].Color)
		assert.Contains(embeds[0].Description, "quyền")
	}

	vl, _ := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	if assert.Len(vl, 1) {
		assert.Equal("Không spam link", vl[0].ViolatedRule)
		assert.Equal(verdict.ActionMute, vl[0].ResolvedAction)
	}
	// the mute did not happen, so there is no action record
	al, _ := tf.Audit.QueryActions(ctx, "ws1", auditlog.Filter{}, 0)
	assert.Empty(al)
}

func TestMuteRecordsDuration(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Classifier.Reply = "VIOLATION: Có\nSEVERITY: Trung bình\nACTION: Không"

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("tin nhắn vi phạm vừa phải")))

	assert.Equal(DefaultMuteDuration, tf.Platform.Timeouts["user1"])
	al, _ := tf.Audit.QueryActions(ctx, "ws1", auditlog.Filter{Action: verdict.ActionMute}, 0)
	if assert.Len(al, 1) && assert.NotNil(al[0].DurationMinutes) {
		assert.Equal(10, *al[0].DurationMinutes)
	}
}

func TestFakeAccountEscalation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Engine.FakeAccountAge = 7 * 24 * time.Hour

	msg := TestMessage("s4ory là ai vậy")
	created := time.Now().Add(-time.Hour)
	msg.AuthorCreatedAt = &created

	assert.NoError(tf.Engine.ProcessMessage(ctx, msg))

	// keyword Warn escalates to Mute, which deletes the message
	assert.Equal(1, tf.Platform.CallCount("delete"))
	assert.Equal(1, tf.Platform.CallCount("timeout"))
	flags, err := tf.Flags.Get(ctx, countstore.MemberKey("ws1", "user1"))
	assert.NoError(err)
	assert.Contains(flags, flagstore.FlagSuspectedFake)

	vl, _ := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	if assert.Len(vl, 1) {
		assert.True(vl[0].IsFakeAccountSuspected)
		assert.Equal(verdict.ActionWarn, vl[0].RecommendedAction)
		assert.Equal(verdict.ActionMute, vl[0].ResolvedAction)
	}
}

func TestFlaggedAuthorStaysSuspected(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	// flagged by an earlier message; this account has no creation time to judge by
	require.NoError(t, tf.Flags.Add(ctx, countstore.MemberKey("ws1", "user1"), []string{flagstore.FlagSuspectedFake}))
	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("s4ory là ai vậy")))

	assert.Equal(1, tf.Platform.CallCount("timeout"))
	vl, _ := tf.Audit.QueryViolations(ctx, "ws1", auditlog.Filter{}, 0)
	if assert.Len(vl, 1) {
		assert.True(vl[0].IsFakeAccountSuspected)
		assert.Equal(verdict.ActionMute, vl[0].ResolvedAction)
	}

	// flags are per workspace member
	other := TestMessage("s4ory là ai vậy")
	other.AuthorID = "user2"
	other.MessageID = "msg2"
	assert.NoError(tf.Engine.ProcessMessage(ctx, other))
	assert.Equal(1, tf.Platform.CallCount("timeout"))
}

func TestViolationCounters(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	for i := range 3 {
		msg := TestMessage("s4ory là ai")
		msg.MessageID = fmt.Sprintf("msg%d", i)
		assert.NoError(tf.Engine.ProcessMessage(ctx, msg))
	}
	c, err := tf.Counters.GetCount(ctx, countstore.CounterViolation, countstore.MemberKey("ws1", "user1"), countstore.PeriodDay)
	assert.NoError(err)
	assert.Equal(3, c)

	embeds := tf.Platform.Embeds["chan-modlog"]
	require.Len(t, embeds, 3)
	found := false
	for _, f := range embeds[2].Fields {
		if f.Value == "3" {
			found = true
		}
	}
	assert.True(found)
}

func TestAuditChannelResolution(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	logger := tf.Engine.Logger
	tf.Platform.Channels = append(tf.Platform.Channels, Channel{ID: "chan-custom", WorkspaceID: "ws1", Name: "nhat-ky"})

	ms, _ := tf.Registry.Get("ws1")
	assert.Equal("chan-modlog", tf.Engine.resolveAuditChannel(ctx, logger, ms))
	// second lookup is served from cache
	assert.Equal("chan-modlog", tf.Engine.resolveAuditChannel(ctx, logger, ms))
	assert.Equal(1, tf.Platform.CallCount("list"))

	// configured channel wins once the cache entry is gone
	ms = ms.Clone()
	ms.LogChannels = map[string]settings.LogChannel{settings.LogTypeMonitor: {ChannelID: "chan-custom", Enabled: true}}
	assert.NoError(tf.Engine.Cache.Purge(ctx, "audit-channel", "ws1"))
	assert.Equal("chan-custom", tf.Engine.resolveAuditChannel(ctx, logger, ms))

	// disabled log channel and no conventional name: nothing, and that is cached too
	tf2 := EngineTestFixture()
	tf2.Platform.Channels = []Channel{{ID: "c1", Name: "general"}}
	ms.LogChannels[settings.LogTypeMonitor] = settings.LogChannel{ChannelID: "chan-custom", Enabled: false}
	assert.Equal("", tf2.Engine.resolveAuditChannel(ctx, logger, ms))
	assert.Equal("", tf2.Engine.resolveAuditChannel(ctx, logger, ms))
	assert.Equal(1, tf2.Platform.CallCount("list"))

	// platform errors are not cached
	tf3 := EngineTestFixture()
	tf3.Platform.Errors["list"] = errors.New("gateway unavailable")
	assert.Equal("", tf3.Engine.resolveAuditChannel(ctx, logger, ms))
	assert.Equal("", tf3.Engine.resolveAuditChannel(ctx, logger, ms))
	assert.Equal(2, tf3.Platform.CallCount("list"))
}

func TestIngressSkips(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	own := TestMessage(warningText("user1", verdict.Verdict{ViolatedRule: "x"}, verdict.ActionWarn, DefaultMuteDuration))
	own.AuthorID = "user2"
	bot := TestMessage("s4ory là ai")
	bot.IsBotAuthor = true
	other := TestMessage("s4ory là ai")
	other.WorkspaceID = "ws-unknown"

	for _, msg := range []*event.MessageEvent{own, bot, other, TestMessage("hi"), TestMessage("/ban s4ory")} {
		assert.NoError(tf.Engine.ProcessMessage(ctx, msg))
	}
	assert.Equal(0, tf.Classifier.Calls)
	assert.Empty(tf.Platform.Calls)
}

func TestPanicRecovery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Engine.Platform = nil

	err := tf.Engine.ProcessMessage(ctx, TestMessage("s4ory là ai"))
	assert.Error(err)
}

func TestWarningCannotMassPing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Classifier.Reply = "VIOLATION: YES\nRULE: 1\nSEVERITY: low\nACTION: warn\nREASON: Tin nhắn \"@everyone @here <@&999> <@user2> mua acc đi\" là spam\n"

	assert.NoError(tf.Engine.ProcessMessage(ctx, TestMessage("@everyone @here <@&999> mua acc đi")))

	warnings := tf.Platform.Messages["chan-general"]
	if assert.Len(warnings, 1) {
		assert.Contains(warnings[0], "<@user1>")
		assert.NotContains(warnings[0], "@everyone")
		assert.NotContains(warnings[0], "@here")
		assert.NotContains(warnings[0], "<@&999>")
		assert.NotContains(warnings[0], "<@user2>")
	}
	assert.Equal([]string{"user1"}, tf.Platform.Pinged["chan-general"])
}

func TestWarningWording(t *testing.T) {
	assert := assert.New(t)
	v := verdict.Verdict{IsViolation: true, ViolatedRule: "Không spam", Reason: "quảng cáo"}

	for action, want := range map[verdict.Action]string{
		verdict.ActionWarn:          "Vui lòng",
		verdict.ActionDeleteMessage: "đã bị xóa",
		verdict.ActionMute:          "tắt tiếng 10 phút",
		verdict.ActionKick:          "đuổi",
		verdict.ActionBan:           "cấm",
	} {
		txt := warningText("u1", v, action, DefaultMuteDuration)
		assert.Contains(txt, want, action)
		assert.Contains(txt, "<@u1>")
		assert.Contains(txt, "quảng cáo")
	}
}
