package settings

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type MemStore struct {
	lk   sync.Mutex
	data map[string]*MonitorSettings
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]*MonitorSettings),
	}
}

func (s *MemStore) FindOne(ctx context.Context, workspaceID string) (*MonitorSettings, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	v, ok := s.data[workspaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, workspaceID)
	}
	return v.Clone(), nil
}

func (s *MemStore) FindEnabled(ctx context.Context) ([]*MonitorSettings, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []*MonitorSettings
	for _, v := range s.data {
		if v.Enabled {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func (s *MemStore) Upsert(ctx context.Context, ms *MonitorSettings) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	row := ms.Clone()
	row.UpdatedAt = time.Now().UTC()
	s.data[ms.WorkspaceID] = row
	return nil
}
