package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/internal/models"
)

// runRepo 运行记录仓储实现
type runRepo struct {
	db *gorm.DB // 数据库连接
}

// NewRunRepository 使用指定的数据库连接创建运行记录仓储
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepo{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *runRepo) WithContext(ctx context.Context) RunRepository {
	return &runRepo{db: r.db.WithContext(ctx)}
}

// Create 创建运行记录，ID为空时自动生成
func (r *runRepo) Create(run *models.IngestRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	return r.db.Create(run).Error
}

// Update 更新运行记录
func (r *runRepo) Update(run *models.IngestRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	return r.db.Save(run).Error
}

// GetByID 根据ID获取运行记录
func (r *runRepo) GetByID(id string) (*models.IngestRun, error) {
	var run models.IngestRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出运行记录
func (r *runRepo) List(offset, limit int, filters map[string]interface{}) ([]*models.IngestRun, int64, error) {
	var runs []*models.IngestRun
	var total int64

	query := r.db.Model(&models.IngestRun{})

	// 应用筛选条件
	if filters != nil {
		if status, ok := filters["status"].(string); ok && status != "" {
			query = query.Where("status = ?", status)
		}
		if by, ok := filters["triggered_by"].(string); ok && by != "" {
			query = query.Where("triggered_by = ?", by)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	err := query.Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}
