// Package vectordbtest 各向量后端共用的行为测试
package vectordbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-rag-assistant/internal/vectordb"
)

// NewDoc 创建用于测试的文档
func NewDoc(id, source string, position int, vector []float32) vectordb.Document {
	return vectordb.Document{
		ID:       id,
		Source:   source,
		Position: position,
		Text:     "这是测试文档 " + id,
		Vector:   vector,
		Metadata: map[string]interface{}{
			"source": source,
			"lang":   "zh",
		},
		CreatedAt: time.Now(),
	}
}

var (
	v1 = []float32{0.1, 0.2, 0.3, 0.4} // 较小的值
	v2 = []float32{0.5, 0.5, 0.5, 0.5} // 中等值
	v3 = []float32{0.7, 0.8, 0.9, 1.0} // 较大的值
)

// RunRepositoryTests 对指定后端执行通用测试
func RunRepositoryTests(t *testing.T, backend string) {
	t.Run("add search delete", func(t *testing.T) {
		repo, err := vectordb.NewRepository(vectordb.Config{
			Type:         backend,
			Dimension:    4,
			DistanceType: vectordb.Cosine,
		})
		require.NoError(t, err)
		defer repo.Close()

		testRepository(t, repo)
	})

	t.Run("save and load", func(t *testing.T) {
		testSaveAndLoad(t, backend)
	})

	t.Run("invalid batch writes nothing", func(t *testing.T) {
		repo, err := vectordb.NewRepository(vectordb.Config{Type: backend, Dimension: 4})
		require.NoError(t, err)
		defer repo.Close()

		err = repo.AddBatch([]vectordb.Document{
			NewDoc("ok", "a.pdf", 0, v1),
			NewDoc("bad", "a.pdf", 1, []float32{1, 2}),
		})
		assert.ErrorIs(t, err, vectordb.ErrInvalidDimension)

		count, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("euclidean", func(t *testing.T) {
		repo, err := vectordb.NewRepository(vectordb.Config{
			Type:         backend,
			Dimension:    4,
			DistanceType: vectordb.Euclidean,
		})
		require.NoError(t, err)
		defer repo.Close()

		require.NoError(t, repo.AddBatch([]vectordb.Document{
			NewDoc("near", "a.pdf", 0, []float32{1, 1, 1, 1}),
			NewDoc("far", "a.pdf", 1, []float32{5, 5, 5, 5}),
		}))

		results, err := repo.Search([]float32{1, 1, 1, 2}, vectordb.SearchFilter{MaxResults: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "near", results[0].Document.ID)
		assert.InDelta(t, 1.0, results[0].Distance, 1e-4)
		assert.InDelta(t, 0.5, results[0].Score, 1e-4)
	})
}

func testRepository(t *testing.T, repo vectordb.Repository) {
	t.Run("batch insert docs", func(t *testing.T) {
		docs := []vectordb.Document{
			NewDoc("doc1", "data/a.pdf", 0, v1),
			NewDoc("doc2", "data/a.pdf", 1, v2),
			NewDoc("doc3", "data/b.docx", 0, v3),
		}
		require.NoError(t, repo.AddBatch(docs))

		count, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.Equal(t, 4, repo.GetDimension())
		assert.Equal(t, map[string]int{"data/a.pdf": 2, "data/b.docx": 1}, repo.Sources())
	})

	t.Run("vector search", func(t *testing.T) {
		// 使用接近v2的向量进行搜索
		filter := vectordb.DefaultSearchFilter()
		filter.MaxResults = 2

		results, err := repo.Search([]float32{0.45, 0.55, 0.45, 0.55}, filter)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "doc2", results[0].Document.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
		assert.InDelta(t, 1-results[0].Score, results[0].Distance, 1e-5)
	})

	t.Run("filter search", func(t *testing.T) {
		query := []float32{0.5, 0.5, 0.5, 0.5}

		filter := vectordb.DefaultSearchFilter()
		filter.Sources = []string{"data/b.docx"}
		results, err := repo.Search(query, filter)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc3", results[0].Document.ID)

		filter = vectordb.DefaultSearchFilter()
		filter.Metadata = map[string]interface{}{"lang": "en"}
		results, err = repo.Search(query, filter)
		require.NoError(t, err)
		assert.Empty(t, results)

		filter = vectordb.DefaultSearchFilter()
		filter.MinScore = 2
		results, err = repo.Search(query, filter)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("wrong query dimension", func(t *testing.T) {
		_, err := repo.Search([]float32{1, 2, 3}, vectordb.DefaultSearchFilter())
		assert.ErrorIs(t, err, vectordb.ErrInvalidDimension)
	})

	t.Run("delete by source", func(t *testing.T) {
		removed, err := repo.DeleteBySource("data/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		removed, err = repo.DeleteBySource("data/missing.pdf")
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		count, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		results, err := repo.Search(v1, vectordb.DefaultSearchFilter())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc3", results[0].Document.ID)
	})
}

func testSaveAndLoad(t *testing.T, backend string) {
	dir := filepath.Join(t.TempDir(), "db")
	config := vectordb.Config{
		Type:         backend,
		Path:         dir,
		Dimension:    4,
		DistanceType: vectordb.Cosine,
	}

	repo, err := vectordb.NewRepository(config)
	require.NoError(t, err)
	require.NoError(t, repo.AddBatch([]vectordb.Document{
		NewDoc("doc1", "data/a.pdf", 0, v1),
		NewDoc("doc2", "data/a.pdf", 1, v2),
	}))
	require.NoError(t, repo.Save())
	require.NoError(t, repo.Close())

	reopened, err := vectordb.NewRepository(config)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	filter := vectordb.DefaultSearchFilter()
	filter.MaxResults = 1
	results, err := reopened.Search([]float32{0.15, 0.25, 0.35, 0.45}, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].Document.ID)
	assert.Equal(t, "data/a.pdf", results[0].Document.Source)

	// 维度不一致时拒绝加载
	config.Dimension = 8
	_, err = vectordb.NewRepository(config)
	assert.ErrorIs(t, err, vectordb.ErrInvalidDimension)
}
