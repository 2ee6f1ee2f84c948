// Append-only records of analyzed violations and enforcement actions, with filtered retrieval for reporting.
package auditlog

import (
	"context"
	"time"

	"github.com/guildwarden/warden/automod/verdict"
)

// One row per message which went through the detector
type ViolationLogEntry struct {
	ID          uint   `gorm:"primarykey"`
	WorkspaceID string `gorm:"index:idx_violation_ws_user_ts,priority:1;not null"`
	ChannelID   string
	MessageID   string
	UserID      string `gorm:"index:idx_violation_ws_user_ts,priority:2"`
	MessageText string
	Timestamp   time.Time `gorm:"index:idx_violation_ws_user_ts,priority:3"`

	IsViolation            bool
	ViolatedRule           string
	Severity               verdict.Severity
	IsFakeAccountSuspected bool
	RecommendedAction      verdict.Action
	Reason                 string

	// Action the policy resolved to, after overrides and escalation
	ResolvedAction      verdict.Action
	RawClassifierOutput string
	// "keyword" or "classifier"
	DetectionTier string
}

func (ViolationLogEntry) TableName() string {
	return "violation_logs"
}

func (e *ViolationLogEntry) Verdict() verdict.Verdict {
	return verdict.Verdict{
		IsViolation:            e.IsViolation,
		ViolatedRule:           e.ViolatedRule,
		Severity:               e.Severity,
		IsFakeAccountSuspected: e.IsFakeAccountSuspected,
		RecommendedAction:      e.RecommendedAction,
		Reason:                 e.Reason,
	}
}

func (e *ViolationLogEntry) SetVerdict(v verdict.Verdict) {
	e.IsViolation = v.IsViolation
	e.ViolatedRule = v.ViolatedRule
	e.Severity = v.Severity
	e.IsFakeAccountSuspected = v.IsFakeAccountSuspected
	e.RecommendedAction = v.RecommendedAction
	e.Reason = v.Reason
}

// One row per enforcement action actually taken, by the pipeline or by a human moderator
type ModerationActionLogEntry struct {
	ID           uint   `gorm:"primarykey"`
	WorkspaceID  string `gorm:"index:idx_action_ws_ts,priority:1;not null"`
	TargetUserID string `gorm:"index"`
	ModeratorID  string
	Action       verdict.Action `gorm:"index"`
	Reason       string
	Timestamp    time.Time `gorm:"index:idx_action_ws_ts,priority:2"`
	// mute only
	DurationMinutes *int
	// bulk-clear operations only
	Count *int
}

func (ModerationActionLogEntry) TableName() string {
	return "moderation_action_logs"
}

// Empty fields match everything
type Filter struct {
	UserID string
	Action verdict.Action
}

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return min(limit, MaxQueryLimit)
}

// Query results are ordered by timestamp, newest first. For violations, Filter.Action matches the resolved action.
type Store interface {
	AppendViolation(ctx context.Context, entry *ViolationLogEntry) error
	AppendAction(ctx context.Context, entry *ModerationActionLogEntry) error
	QueryViolations(ctx context.Context, workspaceID string, filter Filter, limit int) ([]ViolationLogEntry, error)
	QueryActions(ctx context.Context, workspaceID string, filter Filter, limit int) ([]ModerationActionLogEntry, error)
}
