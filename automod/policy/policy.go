// Maps a violation verdict to the enforcement action to execute.
package policy

import (
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"
)

type Decision struct {
	Action verdict.Action
	// Whether the triggering message is removed
	DeleteMessage bool
	// Action was raised one step because the author is a suspected fake account
	Escalated bool
	// Action came from a workspace rule override rather than the verdict
	Overridden bool
}

// Action used when the classifier flags a violation without recommending anything
func DefaultAction(sev verdict.Severity) verdict.Action {
	switch sev {
	case verdict.SeverityLow:
		return verdict.ActionWarn
	case verdict.SeverityMedium:
		return verdict.ActionMute
	case verdict.SeverityHigh:
		return verdict.ActionBan
	}
	return verdict.ActionWarn
}

// Resolves the action for a verdict under the given workspace settings. Pure function of its inputs.
//
// Verdicts which are not violations always resolve to ActionNone.
func Resolve(v verdict.Verdict, ms *settings.MonitorSettings) Decision {
	if !v.IsViolation {
		return Decision{Action: verdict.ActionNone}
	}

	d := Decision{Action: v.RecommendedAction}
	if d.Action == "" || d.Action == verdict.ActionNone {
		d.Action = DefaultAction(v.Severity)
	}
	// ban is reserved for high severity classifications
	if d.Action == verdict.ActionBan && v.Severity != verdict.SeverityHigh {
		d.Action = verdict.ActionKick
	}

	if ms != nil && v.ViolatedRule != verdict.NoRule {
		if a, ok := ms.RuleActionFor(v.ViolatedRule); ok {
			d.Action = a
			d.Overridden = true
		}
	}

	if v.IsFakeAccountSuspected {
		next := d.Action.Escalate()
		d.Escalated = next != d.Action
		d.Action = next
	}

	d.DeleteMessage = d.Action.DeletesMessage()
	return d
}
