package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"
)

const (
	colorWarn    = 0xF1C40F
	colorAction  = 0xE67E22
	colorSevere  = 0xE74C3C
	colorFailure = 0x992D22

	// cached marker for "this workspace has no audit channel"
	noAuditChannel = "none"
)

// conventional names for moderation log channels: mod-log, modlog, mod-logs, moderation-log, logs, audit-log, ...
var auditChannelName = regexp.MustCompile(`(?i)^(?:mod|moderation|audit|automod)?[-_ ]?logs?$`)

// The Logged stage: counters, audit records, audit channel embed and notifications. Always runs for a violation, whatever happened during enforcement. Nothing here is rolled back or retried.
func (eng *Engine) record(ctx context.Context, logger *slog.Logger, rep *Report) {
	msg := rep.Message
	action := rep.Decision.Action

	if eng.Counters != nil {
		key := countstore.MemberKey(msg.WorkspaceID, msg.AuthorID)
		if err := eng.Counters.Increment(ctx, countstore.CounterViolation, key); err != nil {
			logger.Warn("failed to increment violation counter", "err", err)
		}
		if err := eng.Counters.IncrementDistinct(ctx, countstore.CounterViolators, msg.WorkspaceID, msg.AuthorID); err != nil {
			logger.Warn("failed to increment violators counter", "err", err)
		}
		if c, err := eng.Counters.GetCount(ctx, countstore.CounterViolation, key, countstore.PeriodDay); err == nil {
			rep.TodayCount = c
		}
	}

	eng.persistViolation(ctx, logger, rep)

	if action != verdict.ActionWarn && rep.Outcome.ActionTaken(action) {
		entry := &auditlog.ModerationActionLogEntry{
			WorkspaceID:  msg.WorkspaceID,
			TargetUserID: msg.AuthorID,
			ModeratorID:  eng.BotID,
			Action:       action,
			Reason:       rep.Detect.Verdict.Reason,
			Timestamp:    time.Now().UTC(),
		}
		if action == verdict.ActionMute {
			mins := int(eng.muteDuration().Minutes())
			entry.DurationMinutes = &mins
		}
		if err := eng.Audit.AppendAction(ctx, entry); err != nil {
			auditPersistFailureCount.WithLabelValues("action").Inc()
			logger.Error("failed to persist moderation action", "action", action, "err", err)
		}
		if eng.Counters != nil {
			if err := eng.Counters.Increment(ctx, countstore.CounterAction, countstore.ActionKey(msg.WorkspaceID, action)); err != nil {
				logger.Warn("failed to increment action counter", "err", err)
			}
		}
	}
	rep.Outcome.Stage = StageLogged

	if channelID := eng.resolveAuditChannel(ctx, logger, rep.Settings); channelID != "" {
		if err := eng.Platform.SendEmbed(ctx, channelID, violationEmbed(rep)); err != nil {
			logger.Warn("failed to post audit embed", "channel", channelID, "err", err)
		}
	}

	if eng.Notifier != nil && action != verdict.ActionWarn && rep.Outcome.ActionTaken(action) {
		if err := eng.Notifier.SendEnforcement(ctx, rep); err != nil {
			logger.Error("failed to deliver notification", "err", err)
		}
	}
}

func (eng *Engine) persistViolation(ctx context.Context, logger *slog.Logger, rep *Report) {
	msg := rep.Message
	entry := &auditlog.ViolationLogEntry{
		WorkspaceID:         msg.WorkspaceID,
		ChannelID:           msg.ChannelID,
		MessageID:           msg.MessageID,
		UserID:              msg.AuthorID,
		MessageText:         msg.Text,
		Timestamp:           msg.Timestamp.UTC(),
		ResolvedAction:      rep.Decision.Action,
		RawClassifierOutput: rep.Detect.Raw,
		DetectionTier:       rep.Detect.Tier.String(),
	}
	if msg.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.SetVerdict(rep.Detect.Verdict)
	if err := eng.Audit.AppendViolation(ctx, entry); err != nil {
		auditPersistFailureCount.WithLabelValues("violation").Inc()
		logger.Error("failed to persist violation log", "err", err)
	}
}

// Resolves where audit embeds for the workspace go: the configured monitor log channel, then the first channel with a conventional moderation-log name. Returns empty string if there is none. Results, including "none", are cached.
func (eng *Engine) resolveAuditChannel(ctx context.Context, logger *slog.Logger, ms *settings.MonitorSettings) string {
	if eng.Cache != nil {
		cached, err := eng.Cache.Get(ctx, cachestore.NameAuditChannel, ms.WorkspaceID)
		if err != nil {
			logger.Warn("audit channel cache read failed", "err", err)
		} else if cached == noAuditChannel {
			return ""
		} else if cached != "" {
			return cached
		}
	}

	resolved, ok := eng.lookupAuditChannel(ctx, logger, ms)
	if !ok {
		// platform error; try again next time
		return ""
	}
	if eng.Cache != nil {
		val := resolved
		if val == "" {
			val = noAuditChannel
		}
		if err := eng.Cache.Set(ctx, cachestore.NameAuditChannel, ms.WorkspaceID, val); err != nil {
			logger.Warn("audit channel cache write failed", "err", err)
		}
	}
	return resolved
}

// second return is false if the lookup failed, as opposed to finding nothing
func (eng *Engine) lookupAuditChannel(ctx context.Context, logger *slog.Logger, ms *settings.MonitorSettings) (string, bool) {
	if id, ok := ms.LogChannelFor(settings.LogTypeMonitor); ok {
		ch, err := eng.Platform.FetchChannel(ctx, id)
		if err == nil && ch != nil {
			return ch.ID, true
		}
		logger.Warn("configured log channel unavailable, falling back to channel name lookup", "channel", id, "err", err)
	}
	channels, err := eng.Platform.ListChannels(ctx, ms.WorkspaceID)
	if err != nil {
		logger.Warn("failed to list workspace channels", "err", err)
		return "", false
	}
	for _, ch := range channels {
		if auditChannelName.MatchString(ch.Name) {
			return ch.ID, true
		}
	}
	return "", true
}

func violationEmbed(rep *Report) *Embed {
	v := rep.Detect.Verdict
	action := rep.Decision.Action
	color := colorWarn
	switch {
	case action == verdict.ActionBan || action == verdict.ActionKick:
		color = colorSevere
	case action != verdict.ActionWarn:
		color = colorAction
	}

	fields := []EmbedField{
		{Name: "Thành viên", Value: mention(rep.Message.AuthorID), Inline: true},
		{Name: "Kênh", Value: "<#" + rep.Message.ChannelID + ">", Inline: true},
		{Name: "Hình phạt", Value: actionSummary(rep), Inline: true},
		{Name: "Quy tắc", Value: truncate(ruleLabel(v.ViolatedRule), 1000)},
		{Name: "Mức độ", Value: string(v.Severity), Inline: true},
		{Name: "Phát hiện bởi", Value: rep.Detect.Tier.String(), Inline: true},
	}
	if v.IsFakeAccountSuspected {
		fields = append(fields, EmbedField{Name: "Tài khoản", Value: "Nghi là tài khoản ảo", Inline: true})
	}
	if rep.TodayCount > 0 {
		fields = append(fields, EmbedField{Name: "Vi phạm hôm nay", Value: fmt.Sprint(rep.TodayCount), Inline: true})
	}
	fields = append(fields, EmbedField{Name: "Nội dung", Value: truncate(rep.Message.Text, 1000)})
	if v.Reason != "" {
		fields = append(fields, EmbedField{Name: "Lý do", Value: truncate(v.Reason, 1000)})
	}

	return &Embed{
		Title:     "🛡️ AutoMod: phát hiện vi phạm",
		Color:     color,
		Fields:    fields,
		Footer:    "message " + rep.Message.MessageID,
		Timestamp: time.Now().UTC(),
	}
}

func actionSummary(rep *Report) string {
	s := string(rep.Decision.Action)
	if rep.Decision.Escalated {
		s += " (nâng mức)"
	}
	if rep.Decision.Overridden {
		s += " (tùy chỉnh)"
	}
	if rep.Decision.Action != verdict.ActionWarn && !rep.Outcome.ActionTaken(rep.Decision.Action) {
		s += " ❌"
	}
	return s
}
