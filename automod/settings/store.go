package settings

import (
	"context"
)

// Persistent backing for monitor settings ("rule store").
type Store interface {
	// Returns ErrNotFound (wrapped) if there is no record for the workspace
	FindOne(ctx context.Context, workspaceID string) (*MonitorSettings, error)
	FindEnabled(ctx context.Context) ([]*MonitorSettings, error)
	// Inserts or fully replaces the record for s.WorkspaceID
	Upsert(ctx context.Context, s *MonitorSettings) error
}
