package embedding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/internal/cache"
)

// CachedClient 为单条查询的向量添加缓存
// 批量接口直接透传，导入阶段的文本通常不会重复
type CachedClient struct {
	Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{
		Client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Embed 先查缓存，未命中时调用底层客户端并写回
// 缓存读写失败只记录日志，不影响结果
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	key := cache.GenerateCacheKey("emb", c.Name(), text)
	if data, found, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
	} else if found {
		var vector []float32
		if err := json.Unmarshal(data, &vector); err == nil {
			return vector, nil
		}
	}

	vector, err := c.Client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vector); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Failed to write embedding cache")
		}
	}
	return vector, nil
}
