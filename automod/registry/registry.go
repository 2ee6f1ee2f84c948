// In-memory view of monitor settings, consulted on every inbound message.
//
// Reads never touch persistent storage. Writes go through the settings store first, and only update the cache if the store write succeeded.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guildwarden/warden/automod/settings"

	"github.com/puzpuzpuz/xsync/v3"
)

type Registry interface {
	// Returned settings are shared and must be treated as read-only
	Get(workspaceID string) (*settings.MonitorSettings, bool)
	Set(ctx context.Context, ms *settings.MonitorSettings) error
	LoadAll(ctx context.Context) error
}

type CachedRegistry struct {
	Store  settings.Store
	Logger *slog.Logger

	data *xsync.MapOf[string, *settings.MonitorSettings]
}

var _ Registry = (*CachedRegistry)(nil)

func NewCachedRegistry(store settings.Store, logger *slog.Logger) *CachedRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRegistry{
		Store:  store,
		Logger: logger,
		data:   xsync.NewMapOf[string, *settings.MonitorSettings](),
	}
}

func (r *CachedRegistry) Get(workspaceID string) (*settings.MonitorSettings, bool) {
	return r.data.Load(workspaceID)
}

// Persists the full record, then swaps it in to the cache. The record is stored whether or not it is enabled, so a later re-enable needs no re-fetch.
func (r *CachedRegistry) Set(ctx context.Context, ms *settings.MonitorSettings) error {
	row := ms.Clone()
	if err := r.Store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("persisting monitor settings for %s: %w", ms.WorkspaceID, err)
	}
	r.data.Store(row.WorkspaceID, row)
	return nil
}

// Hydrates the cache with all enabled records. Disabled records are skipped to bound memory.
func (r *CachedRegistry) LoadAll(ctx context.Context) error {
	rows, err := r.Store.FindEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading monitor settings: %w", err)
	}
	for _, row := range rows {
		r.data.Store(row.WorkspaceID, row)
	}
	r.Logger.Info("loaded monitor settings", "count", len(rows))
	return nil
}

// Number of cached workspaces
func (r *CachedRegistry) Size() int {
	return r.data.Size()
}
