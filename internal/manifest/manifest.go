// Package manifest 记录每个源文件最近一次成功导入时的修改时间
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
)

// ErrNoDatabase sqlite清单缺少数据库连接
var ErrNoDatabase = errors.New("sqlite manifest requires a database connection")

// Manifest 文件名到修改时间（Unix秒，含小数）的映射
type Manifest map[string]float64

// NeedsProcessing 没有记录或当前修改时间严格大于记录值时需要处理
func (m Manifest) NeedsProcessing(name string, modTime float64) bool {
	recorded, ok := m[name]
	return !ok || modTime > recorded
}

// Clone 复制清单
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ModTime 将文件修改时间转换为Unix秒
func ModTime(info os.FileInfo) float64 {
	return TimeToEpoch(info.ModTime())
}

// TimeToEpoch 将时间转换为含小数的Unix秒
func TimeToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// EpochToTime 将含小数的Unix秒转换回时间
func EpochToTime(v float64) time.Time {
	return time.Unix(0, int64(v*float64(time.Second)))
}

// Store 清单存储接口
type Store interface {
	// Load 读取清单，不存在时返回空清单
	Load(ctx context.Context) (Manifest, error)

	// Save 用给定内容覆盖已保存的清单
	Save(ctx context.Context, m Manifest) error
}

// New 根据类型创建清单存储
func New(kind, path string, db *gorm.DB) (Store, error) {
	switch kind {
	case "", "json":
		return NewJSONStore(path), nil
	case "sqlite":
		if db == nil {
			return nil, ErrNoDatabase
		}
		return NewSQLStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported manifest type: %s", kind)
	}
}
