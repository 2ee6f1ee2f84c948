// Runtime for the moderation pipeline: admits messages, detects violations, resolves policy, enforces, and records the outcome.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/detect"
	"github.com/guildwarden/warden/automod/event"
	"github.com/guildwarden/warden/automod/flagstore"
	"github.com/guildwarden/warden/automod/ingress"
	"github.com/guildwarden/warden/automod/policy"
	"github.com/guildwarden/warden/automod/settings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMuteDuration   = 10 * time.Minute
	DefaultBanPurgeWindow = 24 * time.Hour
	// how long a resolved audit channel (or its absence) is remembered
	AuditChannelTTL = 30 * time.Minute
)

// Runtime for processing chat messages and executing moderation actions.
//
// Filter, Detector, Audit and Platform are required. Counters, Cache, Flags and Notifier are optional.
type Engine struct {
	Logger   *slog.Logger
	Filter   *ingress.Filter
	Detector *detect.Detector
	Audit    auditlog.Store
	Counters countstore.CountStore
	Cache    cachestore.CacheStore
	Flags    flagstore.FlagStore
	Platform Platform
	Notifier Notifier
	// Platform user id of this bot; recorded as the moderator of automated actions
	BotID string
	// Authors whose account is younger than this are suspected fake. Zero disables the check.
	FakeAccountAge time.Duration
	// Also persist verdicts for messages which were analyzed and found clean
	LogAllVerdicts bool
	MuteDuration   time.Duration
	BanPurgeWindow time.Duration
}

// Everything learned about a single message as it moves through the pipeline
type Report struct {
	Message  *event.MessageEvent
	Settings *settings.MonitorSettings
	Detect   detect.Result
	Decision policy.Decision
	Outcome  Outcome
	// violations by this author in this workspace today, including this one
	TodayCount int
}

// Runs the full pipeline for one message. Failures inside a stage are logged and swallowed; the returned error is only set for a recovered panic.
func (eng *Engine) ProcessMessage(ctx context.Context, msg *event.MessageEvent) (err error) {
	// similar to an HTTP server, we want to recover any panics from pipeline execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod message processing exception", "err", r, "workspace", msg.WorkspaceID, "message", msg.MessageID)
			messageErrorCount.Inc()
			err = fmt.Errorf("panic processing message %s: %v", msg.MessageID, r)
		}
	}()

	start := time.Now()
	ms, skip := eng.Filter.Admit(msg)
	if skip != ingress.Pass {
		messageSkipCount.WithLabelValues(string(skip)).Inc()
		return nil
	}
	defer func() {
		messageProcessDuration.Observe(time.Since(start).Seconds())
	}()
	ctx, span := tracer.Start(ctx, "process-message", trace.WithAttributes(
		attribute.String("workspace", msg.WorkspaceID),
		attribute.String("message", msg.MessageID),
	))
	defer span.End()

	logger := eng.Logger.With("workspace", msg.WorkspaceID, "channel", msg.ChannelID, "message", msg.MessageID, "author", msg.AuthorID)
	rep := &Report{
		Message:  msg,
		Settings: ms,
		Detect:   eng.Detector.Detect(ctx, ms, msg.Text),
	}
	if !rep.Detect.Verdict.IsFakeAccountSuspected {
		rep.Detect.Verdict.IsFakeAccountSuspected = authorIsYoungerThan(msg, eng.FakeAccountAge) || eng.authorFlaggedFake(ctx, logger, msg)
	}
	rep.Decision = policy.Resolve(rep.Detect.Verdict, ms)
	messageProcessCount.WithLabelValues(rep.Detect.Tier.String(), fmt.Sprint(rep.Detect.Verdict.IsViolation)).Inc()

	if rep.Detect.Verdict.IsFakeAccountSuspected {
		eng.flagSuspectedFake(ctx, logger, msg)
	}

	if !rep.Detect.Verdict.IsViolation {
		if eng.LogAllVerdicts {
			eng.persistViolation(ctx, logger, rep)
		}
		rep.CanonicalLogLine(logger)
		return nil
	}

	span.SetAttributes(attribute.String("action", string(rep.Decision.Action)))
	eng.enforce(ctx, logger, rep)
	eng.record(ctx, logger, rep)
	rep.CanonicalLogLine(logger)
	return nil
}

func (eng *Engine) muteDuration() time.Duration {
	if eng.MuteDuration <= 0 {
		return DefaultMuteDuration
	}
	return eng.MuteDuration
}

func (eng *Engine) banPurgeWindow() time.Duration {
	if eng.BanPurgeWindow <= 0 {
		return DefaultBanPurgeWindow
	}
	return eng.BanPurgeWindow
}

// a previous message already got this author flagged
func (eng *Engine) authorFlaggedFake(ctx context.Context, logger *slog.Logger, msg *event.MessageEvent) bool {
	if eng.Flags == nil {
		return false
	}
	flags, err := eng.Flags.Get(ctx, countstore.MemberKey(msg.WorkspaceID, msg.AuthorID))
	if err != nil {
		logger.Warn("failed to read account flags", "err", err)
		return false
	}
	return slices.Contains(flags, flagstore.FlagSuspectedFake)
}

func (eng *Engine) flagSuspectedFake(ctx context.Context, logger *slog.Logger, msg *event.MessageEvent) {
	if eng.Flags == nil {
		return
	}
	if err := eng.Flags.Add(ctx, countstore.MemberKey(msg.WorkspaceID, msg.AuthorID), []string{flagstore.FlagSuspectedFake}); err != nil {
		logger.Warn("failed to persist account flag", "err", err)
	}
}

// Final log summary for a processed message, in key/value form
func (rep *Report) CanonicalLogLine(logger *slog.Logger) {
	v := rep.Detect.Verdict
	args := []any{
		"tier", rep.Detect.Tier.String(),
		"violation", v.IsViolation,
		"rule", v.ViolatedRule,
		"severity", v.Severity,
		"fake", v.IsFakeAccountSuspected,
		"recommended", v.RecommendedAction,
		"action", rep.Decision.Action,
		"escalated", rep.Decision.Escalated,
		"overridden", rep.Decision.Overridden,
		"stage", rep.Outcome.Stage.String(),
	}
	if rep.Detect.Err != nil {
		args = append(args, "classifierErr", rep.Detect.Err)
	}
	if len(rep.Outcome.Failures) > 0 {
		args = append(args, "failures", len(rep.Outcome.Failures))
	}
	logger.Info("canonical-log-line", args...)
}
