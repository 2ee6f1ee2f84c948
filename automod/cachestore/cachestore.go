package cachestore

import (
	"context"
)

// Namespace for resolved audit channel ids, keyed by workspace
const NameAuditChannel = "audit-channel"

// Get returns an empty string, and no error, on a miss.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

func cacheKey(name, key string) string {
	return name + "/" + key
}
