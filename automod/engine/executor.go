package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildwarden/warden/automod/verdict"
)

// Enforcement progress for one violation. Steps which do not apply to the resolved action are skipped, so the stages reached are a prefix of Detected → Warned → MessageDeleted → MemberActioned → Logged.
type Stage int

const (
	StageDetected Stage = iota
	StageWarned
	StageMessageDeleted
	StageMemberActioned
	StageLogged
)

func (s Stage) String() string {
	switch s {
	case StageDetected:
		return "detected"
	case StageWarned:
		return "warned"
	case StageMessageDeleted:
		return "message-deleted"
	case StageMemberActioned:
		return "member-actioned"
	case StageLogged:
		return "logged"
	}
	return "unknown"
}

type StepFailure struct {
	Step string
	Err  error
}

type Outcome struct {
	// last stage the executor moved through; failed steps still advance the stage
	Stage          Stage
	Warned         bool
	MessageDeleted bool
	MemberActioned bool
	Failures       []StepFailure
}

func (o *Outcome) fail(step string, err error) {
	o.Failures = append(o.Failures, StepFailure{Step: step, Err: err})
	enforcementFailureCount.WithLabelValues(step, fmt.Sprint(errors.Is(err, ErrPermissionDenied))).Inc()
}

// Whether the action beyond a warning actually took effect on the platform
func (o *Outcome) ActionTaken(action verdict.Action) bool {
	switch {
	case action.TargetsMember():
		return o.MemberActioned
	case action == verdict.ActionDeleteMessage:
		return o.MessageDeleted
	}
	return false
}

// Runs the warning, deletion and member-action steps. No step failure stops later steps.
func (eng *Engine) enforce(ctx context.Context, logger *slog.Logger, rep *Report) {
	msg := rep.Message
	action := rep.Decision.Action
	out := &rep.Outcome

	text := warningText(msg.AuthorID, rep.Detect.Verdict, action, eng.muteDuration())
	if err := eng.Platform.SendMessage(ctx, msg.ChannelID, text, []string{msg.AuthorID}); err != nil {
		logger.Warn("failed to post in-channel warning", "err", err)
		out.fail("warn", err)
	} else {
		out.Warned = true
	}
	out.Stage = StageWarned

	if rep.Decision.DeleteMessage {
		if err := eng.Platform.DeleteMessage(ctx, msg.Ref()); err != nil {
			logger.Warn("failed to delete violating message", "err", err)
			out.fail("delete", err)
		} else {
			out.MessageDeleted = true
		}
		out.Stage = StageMessageDeleted
	}

	if action.TargetsMember() {
		reason := auditReason(rep)
		var err error
		switch action {
		case verdict.ActionMute:
			err = eng.Platform.TimeoutMember(ctx, msg.WorkspaceID, msg.AuthorID, eng.muteDuration(), reason)
		case verdict.ActionKick:
			err = eng.Platform.KickMember(ctx, msg.WorkspaceID, msg.AuthorID, reason)
		case verdict.ActionBan:
			err = eng.Platform.BanMember(ctx, msg.WorkspaceID, msg.AuthorID, reason, eng.banPurgeWindow())
		}
		if err != nil {
			logger.Warn("failed to enforce member action", "action", action, "err", err)
			out.fail(string(action), err)
			eng.reportFailure(ctx, logger, rep, action, err)
		} else {
			out.MemberActioned = true
		}
		out.Stage = StageMemberActioned
	}

	if out.ActionTaken(action) {
		enforcementActionCount.WithLabelValues(string(action)).Inc()
	}
}

// Platform audit-log reason for member actions
func auditReason(rep *Report) string {
	// platforms limit audit reasons to a few hundred characters
	return truncate(fmt.Sprintf("AutoMod: vi phạm %s", ruleLabel(rep.Detect.Verdict.ViolatedRule)), 400)
}

// Posts a distinct failure notice to the audit channel, if there is one
func (eng *Engine) reportFailure(ctx context.Context, logger *slog.Logger, rep *Report, action verdict.Action, cause error) {
	channelID := eng.resolveAuditChannel(ctx, logger, rep.Settings)
	if channelID == "" {
		return
	}
	hint := "Lỗi từ nền tảng khi thực thi hình phạt."
	if errors.Is(cause, ErrPermissionDenied) {
		hint = "Bot không có đủ quyền. Hãy kiểm tra quyền và thứ tự vai trò của bot."
	}
	embed := &Embed{
		Title:       "❌ Không thể thực thi hình phạt",
		Description: hint,
		Color:       colorFailure,
		Fields: []EmbedField{
			{Name: "Thành viên", Value: mention(rep.Message.AuthorID), Inline: true},
			{Name: "Hình phạt", Value: string(action), Inline: true},
			{Name: "Lỗi", Value: truncate(cause.Error(), 1000)},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := eng.Platform.SendEmbed(ctx, channelID, embed); err != nil {
		logger.Warn("failed to post enforcement failure notice", "channel", channelID, "err", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
