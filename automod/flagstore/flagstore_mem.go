package flagstore

import (
	"context"
	"slices"
	"sync"
)

type MemFlagStore struct {
	mu   sync.Mutex
	data map[string][]string
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		data: make(map[string][]string),
	}
}

func (s *MemFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := slices.Clone(s.data[key])
	if v == nil {
		v = []string{}
	}
	return v, nil
}

func (s *MemFlagStore) Add(ctx context.Context, key string, flags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = dedupeStrings(append(slices.Clone(s.data[key]), flags...))
	return nil
}

// does not error if flags not in set
func (s *MemFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := slices.DeleteFunc(slices.Clone(s.data[key]), func(f string) bool {
		return slices.Contains(flags, f)
	})
	if len(v) == 0 {
		delete(s.data, key)
		return nil
	}
	s.data[key] = v
	return nil
}
