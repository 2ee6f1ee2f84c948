// Private, persistent flags attached to members, like "suspected-fake".
//
// Flags are never shown to the member. Keys are usually countstore-style "<workspace>/<user>" strings.
package flagstore

import (
	"context"
	"slices"
)

const FlagSuspectedFake = "suspected-fake"

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	Remove(ctx context.Context, key string, flags []string) error
}

func dedupeStrings(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
