// Violation counters, bucketed by time period.
//
// Counters are keyed by a counter name and a value (for example "violations" and "<workspace>/<user>"). Every increment bumps the total, the current UTC day, and the current UTC hour at once.
package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildwarden/warden/automod/verdict"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// Counter names used by the moderation pipeline
const (
	CounterViolation = "violations"
	CounterAction    = "actions"
	// distinct users with a violation, per workspace
	CounterViolators = "violators"
)

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	Increment(ctx context.Context, name, val string) error
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string) error
}

// Counter value for a single member of a workspace
func MemberKey(workspaceID, userID string) string {
	return workspaceID + "/" + userID
}

// Counter value for enforced actions of one kind in a workspace
func ActionKey(workspaceID string, action verdict.Action) string {
	return workspaceID + "/" + string(action)
}

var allPeriods = []string{PeriodTotal, PeriodDay, PeriodHour}

func periodBucket(name, val, period string, now time.Time) string {
	now = now.UTC()
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		return fmt.Sprintf("%s/%s/%s", name, val, now.Format(time.DateOnly))
	case PeriodHour:
		return fmt.Sprintf("%s/%s/%s", name, val, now.Format("2006-01-02T15"))
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}
