package vectordb

import (
	"errors"
	"fmt"
	"time"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid document ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrUnknownBackend   = errors.New("unknown vector backend")
)

// Document 向量库中的一条分块记录
type Document struct {
	ID        string                 `json:"id"`         // 唯一标识符
	Source    string                 `json:"source"`     // 来源文件路径
	Position  int                    `json:"position"`   // 在父文档中的分块位置
	Text      string                 `json:"text"`       // 原始文本内容
	Vector    []float32              `json:"vector"`     // 向量表示
	Metadata  map[string]interface{} `json:"metadata"`   // 简单类型的元数据
	CreatedAt time.Time              `json:"created_at"` // 写入时间
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// ParseDistanceType 解析距离类型，空字符串视为余弦
func ParseDistanceType(s string) (DistanceType, error) {
	switch DistanceType(s) {
	case "", Cosine:
		return Cosine, nil
	case DotProduct, Euclidean:
		return DistanceType(s), nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", s)
	}
}

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分，越大越相似
	Distance float32  // 距离，越小越相似
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	Sources    []string               // 按来源文件过滤
	Metadata   map[string]interface{} // 按元数据过滤
	MinScore   float32                // 最小相似度分数
	MaxResults int                    // 最大返回结果数
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   0.0,
		MaxResults: 4,
	}
}

// Repository 向量数据库仓库接口
type Repository interface {
	// AddBatch 批量添加文档，任一向量不合法时不写入任何文档
	AddBatch(docs []Document) error

	// DeleteBySource 删除指定来源文件的所有分块，返回删除数量
	DeleteBySource(source string) (int, error)

	// Search 相似度搜索
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count 获取文档总数
	Count() (int, error)

	// Sources 返回所有来源文件及其分块数量
	Sources() map[string]int

	// GetDimension 返回向量维数
	GetDimension() int

	// Save 将数据持久化到配置的目录
	Save() error

	// Close 释放资源
	Close() error
}

// Config 向量数据库配置
type Config struct {
	Type         string       // 后端类型，如 "memory", "faiss"
	Path         string       // 持久化目录，为空时只在内存中运行
	Dimension    int          // 向量维度
	DistanceType DistanceType // 距离计算类型
}

// Factory 向量数据库工厂函数类型
// 目录中已有数据时加载，否则创建空仓库
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量数据库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量数据库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量数据库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, config.Type)
	}
	return factory(config)
}
