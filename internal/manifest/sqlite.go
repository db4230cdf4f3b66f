package manifest

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/internal/models"
)

// SQLStore 以数据库表保存清单
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore 创建数据库清单存储，表结构由database.AutoMigrate创建
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Load 读取全部清单条目
func (s *SQLStore) Load(ctx context.Context) (Manifest, error) {
	var entries []models.ManifestEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load manifest entries: %w", err)
	}

	m := make(Manifest, len(entries))
	for _, e := range entries {
		m[e.FileName] = e.ModTime
	}
	return m, nil
}

// Save 在一个事务中替换全部清单条目
func (s *SQLStore) Save(ctx context.Context, m Manifest) error {
	entries := make([]models.ManifestEntry, 0, len(m))
	for name, modTime := range m {
		entries = append(entries, models.ManifestEntry{FileName: name, ModTime: modTime})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.ManifestEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 100).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save manifest entries: %w", err)
	}
	return nil
}
