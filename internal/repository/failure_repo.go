package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/internal/models"
)

// failureRepo 失败记录仓储实现
type failureRepo struct {
	db *gorm.DB // 数据库连接
}

// NewFailureRepository 使用指定的数据库连接创建失败记录仓储
func NewFailureRepository(db *gorm.DB) FailureRepository {
	return &failureRepo{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *failureRepo) WithContext(ctx context.Context) FailureRepository {
	return &failureRepo{db: r.db.WithContext(ctx)}
}

// RecordFailure 记录一次失败
func (r *failureRepo) RecordFailure(fileName string, modTime float64, errMsg string) (int, error) {
	var count int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var failure models.FileFailure
		err := tx.Where("file_name = ?", fileName).First(&failure).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			failure = models.FileFailure{FileName: fileName, ModTime: modTime}
		case err != nil:
			return err
		}

		if failure.ModTime != modTime {
			// 文件已修改，重新计数
			failure.ModTime = modTime
			failure.Count = 0
		}
		failure.Count++
		failure.LastError = errMsg
		count = failure.Count

		return tx.Save(&failure).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// FailureCount 返回文件在指定修改时间下的失败次数
func (r *failureRepo) FailureCount(fileName string, modTime float64) (int, error) {
	var failure models.FileFailure
	err := r.db.Where("file_name = ?", fileName).First(&failure).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if failure.ModTime != modTime {
		return 0, nil
	}
	return failure.Count, nil
}

// Clear 删除文件的失败记录
func (r *failureRepo) Clear(fileName string) error {
	return r.db.Where("file_name = ?", fileName).Delete(&models.FileFailure{}).Error
}

// List 列出全部失败记录
func (r *failureRepo) List() ([]*models.FileFailure, error) {
	var failures []*models.FileFailure
	if err := r.db.Order("updated_at DESC").Find(&failures).Error; err != nil {
		return nil, err
	}
	return failures, nil
}
