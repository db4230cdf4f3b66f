package embedding_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-rag-assistant/internal/cache"
	"github.com/fyerfyer/doc-rag-assistant/internal/embedding"
	"github.com/fyerfyer/doc-rag-assistant/internal/embedding/embeddingtest"
)

// embeddingServer 模拟OpenAI的 /embeddings 接口
// 前failures次请求返回status，之后返回正常结果
func embeddingServer(t *testing.T, failures int32, status int) (*httptest.Server, *int32) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"simulated failure","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// 倒序返回，验证客户端按index还原顺序
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newOpenAIClient(t *testing.T, url string, opts ...embedding.Option) embedding.Client {
	opts = append([]embedding.Option{
		embedding.WithAPIKey("test-key"),
		embedding.WithBaseURL(url),
		embedding.WithRetryDelay(time.Millisecond),
		embedding.WithBatchSize(8),
	}, opts...)
	client, err := embedding.NewClient("openai", opts...)
	require.NoError(t, err)
	return client
}

func TestOpenAIClient(t *testing.T) {
	ctx := context.Background()

	t.Run("batch keeps input order", func(t *testing.T) {
		srv, _ := embeddingServer(t, 0, 0)
		client := newOpenAIClient(t, srv.URL)

		vectors, err := client.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 1}, {1, 2}, {2, 3}}, vectors)
		assert.Equal(t, "text-embedding-3-small", client.Name())
		assert.Equal(t, 1536, client.Dimension())
	})

	t.Run("single text", func(t *testing.T) {
		srv, _ := embeddingServer(t, 0, 0)
		client := newOpenAIClient(t, srv.URL)

		vector, err := client.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 5}, vector)
	})

	t.Run("retries rate limit", func(t *testing.T) {
		srv, calls := embeddingServer(t, 2, http.StatusTooManyRequests)
		client := newOpenAIClient(t, srv.URL)

		_, err := client.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		srv, calls := embeddingServer(t, 10, http.StatusInternalServerError)
		client := newOpenAIClient(t, srv.URL, embedding.WithMaxRetries(1))

		_, err := client.Embed(ctx, "hello")
		assert.True(t, errors.Is(err, embedding.ErrServerError))
		assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	})

	t.Run("invalid key is not retried", func(t *testing.T) {
		srv, calls := embeddingServer(t, 10, http.StatusUnauthorized)
		client := newOpenAIClient(t, srv.URL)

		_, err := client.Embed(ctx, "hello")
		assert.True(t, errors.Is(err, embedding.ErrInvalidAPIKey))
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})

	t.Run("input validation", func(t *testing.T) {
		srv, calls := embeddingServer(t, 0, 0)
		client := newOpenAIClient(t, srv.URL, embedding.WithBatchSize(2))

		_, err := client.Embed(ctx, "")
		assert.True(t, errors.Is(err, embedding.ErrEmptyText))

		_, err = client.EmbedBatch(ctx, []string{"a", "b", "c"})
		assert.True(t, errors.Is(err, embedding.ErrBatchTooLarge))

		vectors, err := client.EmbedBatch(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Equal(t, int32(0), atomic.LoadInt32(calls))
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := embedding.NewClient("openai", embedding.WithAPIKey(""))
		assert.True(t, errors.Is(err, embedding.ErrInvalidAPIKey))
	})
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := embedding.NewClient("unknown")
	require.Error(t, err)

	var embErr embedding.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, embedding.ErrCodeInvalidRequest, embErr.Code)
}

func TestBatchProcessor(t *testing.T) {
	ctx := context.Background()
	fake := embeddingtest.New("fake", 8)
	processor := embedding.NewBatchProcessor(fake, 3)

	t.Run("splits into sequential batches", func(t *testing.T) {
		texts := []string{"one", "two", "three", "four", "five", "six", "seven"}
		vectors, err := processor.Process(ctx, texts)
		require.NoError(t, err)
		assert.Len(t, vectors, len(texts))
		assert.Equal(t, 3, fake.BatchCalls)

		// 顺序与单条嵌入一致
		single, err := fake.Embed(ctx, "four")
		require.NoError(t, err)
		assert.Equal(t, single, vectors[3])
	})

	t.Run("failure returns no partial result", func(t *testing.T) {
		fake.FailOn("bad")
		defer fake.FailOn("")

		vectors, err := processor.Process(ctx, []string{"a", "b", "c", "bad"})
		assert.Nil(t, vectors)
		assert.True(t, errors.Is(err, embeddingtest.ErrInjected))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := processor.Process(cctx, []string{"a"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCachedClient(t *testing.T) {
	ctx := context.Background()
	fake := embeddingtest.New("fake", 8)
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	client := embedding.NewCachedClient(fake, c, time.Minute, nil)

	first, err := client.Embed(ctx, "where are my notes")
	require.NoError(t, err)
	second, err := client.Embed(ctx, "where are my notes")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.EmbedCalls)
	assert.Equal(t, "fake", client.Name())
	assert.Equal(t, 8, client.Dimension())

	_, err = client.Embed(ctx, "")
	assert.True(t, errors.Is(err, embedding.ErrEmptyText))
}
