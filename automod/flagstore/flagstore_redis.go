package flagstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const redisFlagPrefix = "warden/flags/"

// Flags stored as a redis set per key
type RedisFlagStore struct {
	Client *redis.Client
}

var _ FlagStore = (*RedisFlagStore)(nil)

func NewRedisFlagStore(client *redis.Client) *RedisFlagStore {
	return &RedisFlagStore{Client: client}
}

func (s *RedisFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	l, err := s.Client.SMembers(ctx, redisFlagPrefix+key).Result()
	if err != nil {
		return nil, err
	}
	return dedupeStrings(l), nil
}

func (s *RedisFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	return s.Client.SAdd(ctx, redisFlagPrefix+key, toAny(flags)...).Err()
}

func (s *RedisFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	return s.Client.SRem(ctx, redisFlagPrefix+key, toAny(flags)...).Err()
}

func toAny(l []string) []any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = v
	}
	return out
}
