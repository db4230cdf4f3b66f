package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 导入运行状态
type RunStatus string

const (
	// RunStatusRunning 运行中
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded 运行完成，且有文件被处理
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusNoChanges 没有需要处理的文件
	RunStatusNoChanges RunStatus = "no_changes"
	// RunStatusFailed 运行中止
	RunStatusFailed RunStatus = "failed"
)

// ManifestEntry 导入清单条目
// 记录文件在最近一次成功导入时的修改时间
type ManifestEntry struct {
	FileName  string    `gorm:"primaryKey;size:512"` // 源目录中的文件名
	ModTime   float64   `gorm:"not null"`            // 修改时间（Unix秒，含小数）
	UpdatedAt time.Time `gorm:"not null"`            // 更新时间
}

// TableName 明确指定表名
func (ManifestEntry) TableName() string {
	return "manifest_entries"
}

// FileFailure 文件导入失败记录
// 同一修改时间下的连续失败次数，用于隔离反复失败的文件
type FileFailure struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`      // 主键ID
	FileName  string    `gorm:"not null;uniqueIndex;size:512"` // 文件名
	ModTime   float64   `gorm:"not null"`                      // 失败时的修改时间
	Count     int       `gorm:"not null;default:0"`            // 失败次数
	LastError string    `gorm:"type:text"`                     // 最近一次错误
	CreatedAt time.Time `gorm:"not null"`                      // 创建时间
	UpdatedAt time.Time `gorm:"not null;index"`                // 更新时间
}

// TableName 明确指定表名
func (FileFailure) TableName() string {
	return "file_failures"
}

// IngestRun 导入运行记录
type IngestRun struct {
	ID          string         `gorm:"primaryKey;size:36"`     // 运行ID
	TriggeredBy string         `gorm:"size:20"`                // 触发方式：cli、api、queue
	Status      RunStatus      `gorm:"not null;index;size:20"` // 运行状态
	StartedAt   time.Time      `gorm:"not null;index"`         // 开始时间
	FinishedAt  *time.Time     `gorm:""`                       // 结束时间
	Processed   int            `gorm:"not null;default:0"`
	Skipped     int            `gorm:"not null;default:0"`
	Unsupported int            `gorm:"not null;default:0"`
	Failed      int            `gorm:"not null;default:0"`
	Quarantined int            `gorm:"not null;default:0"`
	Chunks      int            `gorm:"not null;default:0"`
	Error       string         `gorm:"type:text"` // 中止原因
	Details     datatypes.JSON `gorm:"type:json"` // 各文件处理结果
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置开始时间
func (r *IngestRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = RunStatusRunning
	}
	return nil
}

// TableName 明确指定表名
func (IngestRun) TableName() string {
	return "ingest_runs"
}
