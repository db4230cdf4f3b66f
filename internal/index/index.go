// Package index 管理持久化的向量索引
// 在向量仓库之上记录构建索引所用的嵌入函数，并提供检索器
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/embedding"
	"github.com/fyerfyer/doc-rag-assistant/internal/fsutil"
	"github.com/fyerfyer/doc-rag-assistant/internal/vectordb"
)

// DescriptorFile 索引描述文件名，存在即表示索引已创建
const DescriptorFile = "index.json"

var (
	// ErrIndexNotFound 持久化目录中没有索引
	ErrIndexNotFound = errors.New("vector index not found")
	// ErrEmbedderMismatch 索引由其他嵌入函数构建，需要完全重建
	ErrEmbedderMismatch = errors.New("embedding function differs from the one the index was built with")
	// ErrNoChunks 创建索引时没有任何分块
	ErrNoChunks = errors.New("no chunks to index")
	// ErrIndexExists 目录中已有索引
	ErrIndexExists = errors.New("vector index already exists")
)

// Config 索引配置
type Config struct {
	Path      string                // 持久化目录
	Backend   string                // 向量仓库类型，如 "faiss", "memory"
	Distance  vectordb.DistanceType // 距离度量
	BatchSize int                   // 嵌入批大小
}

// Descriptor 索引描述信息
type Descriptor struct {
	EmbeddingModel string                `json:"embedding_model"`
	Dimension      int                   `json:"dimension"`
	Distance       vectordb.DistanceType `json:"distance"`
	Backend        string                `json:"backend"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ChunkCount     int                   `json:"chunk_count"`
}

// DescriptorPath 返回目录下描述文件的路径
func DescriptorPath(dir string) string {
	return filepath.Join(dir, DescriptorFile)
}

// ReadDescriptor 读取描述文件，不存在时返回ErrIndexNotFound
func ReadDescriptor(dir string) (Descriptor, error) {
	var desc Descriptor
	data, err := os.ReadFile(DescriptorPath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return desc, fmt.Errorf("%w at %s", ErrIndexNotFound, dir)
	}
	if err != nil {
		return desc, fmt.Errorf("failed to read index descriptor: %w", err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("failed to decode index descriptor: %w", err)
	}
	return desc, nil
}

// Store 持久化向量索引
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	embedder embedding.Client
	batch    *embedding.BatchProcessor
	repo     vectordb.Repository
	desc     Descriptor
	logger   *logrus.Logger
}

// Option 索引配置选项
type Option func(*Store)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newStore(cfg Config, embedder embedding.Client, opts ...Option) *Store {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.Distance == "" {
		cfg.Distance = vectordb.Cosine
	}
	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		batch:    embedding.NewBatchProcessor(embedder, cfg.BatchSize),
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadOrNone 加载已持久化的索引
// 目录中没有描述文件时返回ErrIndexNotFound，调用方据此进入“空”状态
func LoadOrNone(cfg Config, embedder embedding.Client, opts ...Option) (*Store, error) {
	desc, err := ReadDescriptor(cfg.Path)
	if err != nil {
		return nil, err
	}

	if desc.EmbeddingModel != embedder.Name() {
		return nil, fmt.Errorf("%w: index built with %q, configured %q", ErrEmbedderMismatch, desc.EmbeddingModel, embedder.Name())
	}
	if dim := embedder.Dimension(); dim > 0 && dim != desc.Dimension {
		return nil, fmt.Errorf("%w: index dimension %d, embedder dimension %d", ErrEmbedderMismatch, desc.Dimension, dim)
	}

	// 描述文件记录的后端和度量优先于当前配置
	cfg.Backend = desc.Backend
	cfg.Distance = desc.Distance
	s := newStore(cfg, embedder, opts...)

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:         desc.Backend,
		Path:         cfg.Path,
		Dimension:    desc.Dimension,
		DistanceType: desc.Distance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector repository: %w", err)
	}

	s.repo = repo
	s.desc = desc

	s.logger.WithFields(logrus.Fields{
		"path":   cfg.Path,
		"model":  desc.EmbeddingModel,
		"chunks": desc.ChunkCount,
	}).Debug("Vector index loaded")
	return s, nil
}

// Create 用第一批分块创建新索引，只在没有持久化索引时使用
// 新索引在Persist之前不会写入磁盘
func Create(ctx context.Context, cfg Config, chunks []document.Chunk, embedder embedding.Client, opts ...Option) (*Store, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	if fsutil.Exists(DescriptorPath(cfg.Path)) {
		return nil, fmt.Errorf("%w at %s", ErrIndexExists, cfg.Path)
	}

	s := newStore(cfg, embedder, opts...)

	docs, err := s.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	dim := len(docs[0].Vector)

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:         s.cfg.Backend,
		Path:         cfg.Path,
		Dimension:    dim,
		DistanceType: s.cfg.Distance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector repository: %w", err)
	}

	// 清理上次未写完描述文件时遗留的后端数据
	for source := range repo.Sources() {
		if _, err := repo.DeleteBySource(source); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to clear orphaned index data: %w", err)
		}
	}

	if err := repo.AddBatch(docs); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to add chunks: %w", err)
	}

	now := time.Now()
	s.repo = repo
	s.desc = Descriptor{
		EmbeddingModel: embedder.Name(),
		Dimension:      dim,
		Distance:       s.cfg.Distance,
		Backend:        s.cfg.Backend,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.logger.WithFields(logrus.Fields{
		"path":      cfg.Path,
		"backend":   s.cfg.Backend,
		"dimension": dim,
		"chunks":    len(docs),
	}).Info("Vector index created")
	return s, nil
}

// embed 先为全部分块生成向量，任一失败则不返回结果
func (s *Store) embed(ctx context.Context, chunks []document.Chunk) ([]vectordb.Document, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.batch.Process(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	now := time.Now()
	docs := make([]vectordb.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectordb.Document{
			ID:        uuid.New().String(),
			Source:    c.Source(),
			Position:  c.Index,
			Text:      c.Text,
			Vector:    vectors[i],
			Metadata:  c.Metadata,
			CreatedAt: now,
		}
	}
	return docs, nil
}

// Add 追加分块，嵌入失败时索引保持不变
func (s *Store) Add(ctx context.Context, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.AddBatch(docs); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	return nil
}

// Replace 用新分块替换某个来源文件的旧分块
// 先完成嵌入再修改索引，嵌入失败时旧分块保留
func (s *Store) Replace(ctx context.Context, source string, chunks []document.Chunk) error {
	docs, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.repo.DeleteBySource(source)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	if err := s.repo.AddBatch(docs); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"source":  source,
		"removed": removed,
		"added":   len(docs),
	}).Debug("Replaced chunks")
	return nil
}

// DeleteSource 删除某个来源文件的全部分块
func (s *Store) DeleteSource(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.repo.DeleteBySource(source)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"source":  source,
			"removed": removed,
		}).Debug("Removed stale chunks")
	}
	return nil
}

// Persist 写入后端数据，最后写描述文件
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(); err != nil {
		return fmt.Errorf("failed to save vector repository: %w", err)
	}

	count, err := s.repo.Count()
	if err != nil {
		return err
	}
	s.desc.ChunkCount = count
	s.desc.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.desc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index descriptor: %w", err)
	}
	if err := fsutil.WriteFileAtomic(DescriptorPath(s.cfg.Path), data, 0644); err != nil {
		return fmt.Errorf("failed to write index descriptor: %w", err)
	}
	return nil
}

// Descriptor 返回索引描述信息
func (s *Store) Descriptor() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc
}

// Path 返回持久化目录
func (s *Store) Path() string {
	return s.cfg.Path
}

// Count 返回索引中的分块数量
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.Count()
}

// Sources 返回已索引的来源文件及其分块数量
func (s *Store) Sources() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.Sources()
}

// Close 释放后端资源
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Close()
}

// Retriever 按向量相似度返回前k个分块
type Retriever struct {
	store *Store
	k     int
}

// AsRetriever 返回检索器
func (s *Store) AsRetriever(k int) *Retriever {
	if k <= 0 {
		k = vectordb.DefaultSearchFilter().MaxResults
	}
	return &Retriever{store: s, k: k}
}

// K 返回检索数量
func (r *Retriever) K() int {
	return r.k
}

// Retrieve 嵌入查询文本并检索最相似的分块
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectordb.SearchResult, error) {
	vector, err := r.store.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := vectordb.DefaultSearchFilter()
	filter.MaxResults = r.k

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.repo.Search(vector, filter)
}
