package auditlog

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type MemStore struct {
	lk         sync.Mutex
	nextID     uint
	violations []ViolationLogEntry
	actions    []ModerationActionLogEntry
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) AppendViolation(ctx context.Context, entry *ViolationLogEntry) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.nextID++
	entry.ID = s.nextID
	s.violations = append(s.violations, *entry)
	return nil
}

func (s *MemStore) AppendAction(ctx context.Context, entry *ModerationActionLogEntry) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.nextID++
	entry.ID = s.nextID
	s.actions = append(s.actions, *entry)
	return nil
}

func newestFirst(at, bt time.Time, aid, bid uint) int {
	if c := bt.Compare(at); c != 0 {
		return c
	}
	return cmp.Compare(bid, aid)
}

func (s *MemStore) QueryViolations(ctx context.Context, workspaceID string, filter Filter, limit int) ([]ViolationLogEntry, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []ViolationLogEntry
	for _, e := range s.violations {
		if e.WorkspaceID != workspaceID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && e.ResolvedAction != filter.Action {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b ViolationLogEntry) int {
		return newestFirst(a.Timestamp, b.Timestamp, a.ID, b.ID)
	})
	return out[:min(len(out), clampLimit(limit))], nil
}

func (s *MemStore) QueryActions(ctx context.Context, workspaceID string, filter Filter, limit int) ([]ModerationActionLogEntry, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []ModerationActionLogEntry
	for _, e := range s.actions {
		if e.WorkspaceID != workspaceID {
			continue
		}
		if filter.UserID != "" && e.TargetUserID != filter.UserID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b ModerationActionLogEntry) int {
		return newestFirst(a.Timestamp, b.Timestamp, a.ID, b.ID)
	})
	return out[:min(len(out), clampLimit(limit))], nil
}
