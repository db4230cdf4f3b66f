// Package retrieval 将持久化索引包装为可供模型调用的检索工具
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/internal/embedding"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
)

const (
	// ToolName 工具名称
	ToolName = "search_personal_docs"
	// ToolDescription 提供给模型的工具描述
	ToolDescription = "Use this tool to find information from the user's uploaded files and notes."
)

// ErrEmptyQuery 查询为空
var ErrEmptyQuery = errors.New("query cannot be empty")

// Result 单条检索结果
type Result struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float32                `json:"score"`
}

// Tool 检索工具
// 并发安全，索引描述文件变化时自动重新加载
type Tool struct {
	mu       sync.RWMutex
	cfg      index.Config
	embedder embedding.Client
	k        int
	minScore float32
	logger   *logrus.Logger

	store   *index.Store
	version time.Time // 已加载描述文件的修改时间
}

// Option 检索工具配置选项
type Option func(*Tool)

// WithK 设置返回结果数
func WithK(k int) Option {
	return func(t *Tool) {
		if k > 0 {
			t.k = k
		}
	}
}

// WithMinScore 设置最低相似度
func WithMinScore(score float32) Option {
	return func(t *Tool) {
		t.minScore = score
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(t *Tool) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTool 创建检索工具，索引在第一次检索时加载
// 查询向量建议通过embedding.CachedClient缓存
func NewTool(cfg index.Config, embedder embedding.Client, opts ...Option) *Tool {
	t := &Tool{
		cfg:      cfg,
		embedder: embedder,
		k:        4,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name 返回工具名称
func (t *Tool) Name() string { return ToolName }

// Description 返回工具描述
func (t *Tool) Description() string { return ToolDescription }

// K 返回每次检索的结果数
func (t *Tool) K() int { return t.k }

// Search 检索与查询最相关的分块
func (t *Tool) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if err := t.refresh(); err != nil {
		return nil, err
	}

	// 持有读锁直到检索结束，重新加载需等待进行中的检索
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.store == nil {
		return nil, fmt.Errorf("%w at %s: run ingestion first", index.ErrIndexNotFound, t.cfg.Path)
	}

	hits, err := t.store.AsRetriever(t.k).Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < t.minScore {
			continue
		}
		results = append(results, Result{
			Text:     hit.Document.Text,
			Metadata: hit.Document.Metadata,
			Score:    hit.Score,
		})
	}

	t.logger.WithFields(logrus.Fields{
		logging.FieldQuery: query,
		"results":          len(results),
	}).Debug("Searched personal docs")
	return results, nil
}

// Sources 返回索引中每个来源文件的分块数
func (t *Tool) Sources() (map[string]int, error) {
	if err := t.refresh(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.store == nil {
		return nil, fmt.Errorf("%w at %s: run ingestion first", index.ErrIndexNotFound, t.cfg.Path)
	}
	return t.store.Sources(), nil
}

// Invoke 以文本形式返回检索结果，分块之间用空行分隔
func (t *Tool) Invoke(ctx context.Context, query string) (string, error) {
	results, err := t.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

// FormatResults 将结果渲染为供模型阅读的文本
func FormatResults(results []Result) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n\n")
}

// Close 释放已加载的索引
func (t *Tool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.store == nil {
		return nil
	}
	err := t.store.Close()
	t.store = nil
	return err
}

// refresh 描述文件不存在时报错，描述文件更新后重新加载索引
func (t *Tool) refresh() error {
	info, err := os.Stat(index.DescriptorPath(t.cfg.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w at %s: run ingestion first", index.ErrIndexNotFound, t.cfg.Path)
		}
		return fmt.Errorf("failed to stat index descriptor: %w", err)
	}

	t.mu.RLock()
	fresh := t.store != nil && info.ModTime().Equal(t.version)
	t.mu.RUnlock()
	if fresh {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// 其他goroutine可能已经完成加载
	if t.store != nil && info.ModTime().Equal(t.version) {
		return nil
	}

	loaded, err := index.LoadOrNone(t.cfg, t.embedder, index.WithLogger(t.logger))
	if err != nil {
		if errors.Is(err, index.ErrIndexNotFound) {
			return fmt.Errorf("%w: run ingestion first", err)
		}
		return err
	}

	if t.store != nil {
		t.store.Close()
		t.logger.WithField("path", t.cfg.Path).Info("Vector index reloaded")
	}
	t.store = loaded
	t.version = info.ModTime()
	return nil
}
