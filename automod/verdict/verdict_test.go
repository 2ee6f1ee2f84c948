package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	assert := assert.New(t)

	a, err := ParseAction(" Mute ")
	assert.NoError(err)
	assert.Equal(ActionMute, a)

	a, err = ParseAction("DELETE")
	assert.NoError(err)
	assert.Equal(ActionDeleteMessage, a)

	_, err = ParseAction("deletemessage")
	assert.Error(err)
	_, err = ParseAction("")
	assert.Error(err)

	s, err := ParseSeverity("HIGH")
	assert.NoError(err)
	assert.Equal(SeverityHigh, s)
	_, err = ParseSeverity("critical")
	assert.Error(err)
}

func TestParseManualAction(t *testing.T) {
	assert := assert.New(t)

	for _, raw := range []string{"clear", " Unmute", "UNBAN", "ban", "mute"} {
		_, err := ParseManualAction(raw)
		assert.NoError(err, raw)
	}
	a, err := ParseManualAction("unban")
	assert.NoError(err)
	assert.Equal(ActionUnban, a)

	// manual-only actions can never come out of rule configuration
	for _, m := range ManualActions {
		_, err := ParseAction(string(m))
		assert.Error(err)
		assert.NotContains(AllActions, m)
		assert.False(m.DeletesMessage())
		assert.False(m.TargetsMember())
	}
	_, err = ParseManualAction("purge")
	assert.Error(err)
}

func TestEscalationLadder(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ActionWarn, ActionNone.Escalate())
	assert.Equal(ActionMute, ActionWarn.Escalate())
	assert.Equal(ActionMute, ActionDeleteMessage.Escalate())
	assert.Equal(ActionKick, ActionMute.Escalate())
	assert.Equal(ActionKick, ActionKick.Escalate())
	assert.Equal(ActionBan, ActionBan.Escalate())

	// never climbs to ban, however many times it is applied
	a := ActionNone
	for range 10 {
		a = a.Escalate()
	}
	assert.Equal(ActionKick, a)
}

func TestActionEffects(t *testing.T) {
	assert := assert.New(t)

	assert.False(ActionNone.DeletesMessage())
	assert.False(ActionWarn.DeletesMessage())
	for _, a := range []Action{ActionDeleteMessage, ActionMute, ActionKick, ActionBan} {
		assert.True(a.DeletesMessage(), a)
	}

	assert.False(ActionDeleteMessage.TargetsMember())
	assert.True(ActionMute.TargetsMember())
	assert.True(ActionBan.TargetsMember())

	v := Clean("ok")
	assert.False(v.IsViolation)
	assert.Equal(NoRule, v.ViolatedRule)
	assert.Equal(ActionNone, v.RecommendedAction)
}
