package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&MonitorSettings{}); err != nil {
		return nil, fmt.Errorf("migrating monitor settings table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) FindOne(ctx context.Context, workspaceID string) (*MonitorSettings, error) {
	var row MonitorSettings
	err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, workspaceID)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) FindEnabled(ctx context.Context) ([]*MonitorSettings, error) {
	var rows []*MonitorSettings
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) Upsert(ctx context.Context, ms *MonitorSettings) error {
	row := ms.Clone()
	row.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		UpdateAll: true,
	}).Create(row).Error
}
