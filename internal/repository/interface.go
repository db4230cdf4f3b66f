package repository

import (
	"context"

	"github.com/fyerfyer/doc-rag-assistant/internal/models"
)

// FailureRepository 文件失败记录仓储接口
// 按文件名保存当前修改时间下的失败次数
type FailureRepository interface {
	// RecordFailure 记录一次失败并返回该版本的累计失败次数
	// 修改时间变化后计数从1重新开始
	RecordFailure(fileName string, modTime float64, errMsg string) (int, error)

	// FailureCount 返回文件在指定修改时间下的失败次数
	FailureCount(fileName string, modTime float64) (int, error)

	// Clear 删除文件的失败记录，文件导入成功后调用
	Clear(fileName string) error

	// List 列出全部失败记录
	List() ([]*models.FileFailure, error)

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) FailureRepository
}

// RunRepository 导入运行记录仓储接口
type RunRepository interface {
	// Create 创建运行记录
	Create(run *models.IngestRun) error

	// Update 更新运行记录
	Update(run *models.IngestRun) error

	// GetByID 根据ID获取运行记录
	GetByID(id string) (*models.IngestRun, error)

	// List 列出运行记录，按开始时间倒序，支持分页和按状态筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.IngestRun, int64, error)

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) RunRepository
}
