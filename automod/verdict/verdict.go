// Types describing the outcome of analyzing a single message: severity, enforcement action, and the verdict itself.
package verdict

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityNone:
		return SeverityNone, nil
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("unknown severity: %q", raw)
}

type Action string

const (
	ActionNone          Action = "none"
	ActionWarn          Action = "warn"
	ActionDeleteMessage Action = "delete"
	ActionMute          Action = "mute"
	ActionKick          Action = "kick"
	ActionBan           Action = "ban"
)

var AllActions = []Action{ActionNone, ActionWarn, ActionDeleteMessage, ActionMute, ActionKick, ActionBan}

func ParseAction(raw string) (Action, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range AllActions {
		if s == string(a) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action: %q", raw)
}

// Actions only a human moderator takes. The pipeline never resolves to these, so they are not part of AllActions.
const (
	// bulk message removal; the entry's Count says how many
	ActionClear  Action = "clear"
	ActionUnmute Action = "unmute"
	ActionUnban  Action = "unban"
)

var ManualActions = []Action{ActionClear, ActionUnmute, ActionUnban}

// Like ParseAction, but also accepts the manual-only actions
func ParseManualAction(raw string) (Action, error) {
	if a, err := ParseAction(raw); err == nil {
		return a, nil
	}
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range ManualActions {
		if s == string(a) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action: %q", raw)
}

// Whether the triggering message is removed when this action is enforced. Everything beyond a plain warning deletes the message.
func (a Action) DeletesMessage() bool {
	switch a {
	case ActionDeleteMessage, ActionMute, ActionKick, ActionBan:
		return true
	}
	return false
}

// Whether this action applies a platform primitive against the member (timeout, kick, ban)
func (a Action) TargetsMember() bool {
	switch a {
	case ActionMute, ActionKick, ActionBan:
		return true
	}
	return false
}

// One step up the escalation ladder. Escalation stops at Kick: Ban is never reached this way, and Ban itself is unchanged.
func (a Action) Escalate() Action {
	switch a {
	case ActionNone:
		return ActionWarn
	case ActionWarn, ActionDeleteMessage:
		return ActionMute
	case ActionMute:
		return ActionKick
	}
	return a
}

// Value used when a verdict has no matched rule
const NoRule = "none"

// Output of the detection stage for a single message. Never persisted on its own, only embedded in a violation log entry.
type Verdict struct {
	IsViolation            bool
	ViolatedRule           string
	Severity               Severity
	IsFakeAccountSuspected bool
	RecommendedAction      Action
	Reason                 string
}

// Verdict for a message which does not violate any rule
func Clean(reason string) Verdict {
	return Verdict{
		IsViolation:       false,
		ViolatedRule:      NoRule,
		Severity:          SeverityNone,
		RecommendedAction: ActionNone,
		Reason:            reason,
	}
}
