// Package storage 保存索引快照等归档对象
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo 对象元数据
type ObjectInfo struct {
	Key     string    // 对象键，使用 / 分隔
	Size    int64     // 大小（字节）
	ModTime time.Time // 最后修改时间
}

// Storage 对象存储接口
// 可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Put 写入对象，已存在时覆盖
	Put(ctx context.Context, key string, reader io.Reader, size int64) (ObjectInfo, error)

	// Get 读取对象内容
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete 删除对象
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀下的对象，按键排序
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string      // local 或 minio
	Local LocalConfig // 本地存储配置
	Minio MinioConfig // MinIO存储配置
}

// New 根据配置创建存储实现
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
