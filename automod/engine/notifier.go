package engine

import (
	"context"
)

// Interface for a type that can handle sending notifications about enforcement actions
type Notifier interface {
	SendEnforcement(ctx context.Context, rep *Report) error
}
