package auditlog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ViolationLogEntry{}, &ModerationActionLogEntry{}); err != nil {
		return nil, fmt.Errorf("migrating audit log tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) AppendViolation(ctx context.Context, entry *ViolationLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ID = 0
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) AppendAction(ctx context.Context, entry *ModerationActionLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ID = 0
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) QueryViolations(ctx context.Context, workspaceID string, filter Filter, limit int) ([]ViolationLogEntry, error) {
	q := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("resolved_action = ?", filter.Action)
	}
	var out []ViolationLogEntry
	if err := q.Order("timestamp DESC, id DESC").Limit(clampLimit(limit)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) QueryActions(ctx context.Context, workspaceID string, filter Filter, limit int) ([]ModerationActionLogEntry, error) {
	q := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if filter.UserID != "" {
		q = q.Where("target_user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	var out []ModerationActionLogEntry
	if err := q.Order("timestamp DESC, id DESC").Limit(clampLimit(limit)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
