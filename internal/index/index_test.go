package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/embedding/embeddingtest"
	"github.com/fyerfyer/doc-rag-assistant/internal/vectordb"
)

func chunk(source string, index int, text string) document.Chunk {
	return document.Chunk{
		Text:  text,
		Index: index,
		Metadata: map[string]interface{}{
			document.MetaSource: source,
			document.MetaPage:   index,
		},
	}
}

func testConfig(t *testing.T) Config {
	return Config{
		Path:      filepath.Join(t.TempDir(), "db"),
		Backend:   "memory",
		Distance:  vectordb.Cosine,
		BatchSize: 2,
	}
}

func TestLoadOrNoneMissing(t *testing.T) {
	cfg := testConfig(t)

	store, err := LoadOrNone(cfg, embeddingtest.New("fake", 32))
	assert.Nil(t, store)
	assert.True(t, errors.Is(err, ErrIndexNotFound))
	assert.Contains(t, err.Error(), cfg.Path)
}

func TestCreatePersistLoad(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	embedder := embeddingtest.New("fake", 32)

	store, err := Create(ctx, cfg, []document.Chunk{
		chunk("data/a.pdf", 0, "apple pie recipe with cinnamon"),
		chunk("data/a.pdf", 1, "banana smoothie with yogurt"),
		chunk("data/a.pdf", 2, "quarterly revenue report"),
	}, embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.BatchCalls)

	// Persist之前目录中没有描述文件
	assert.NoFileExists(t, DescriptorPath(cfg.Path))
	require.NoError(t, store.Persist())
	require.NoError(t, store.Close())

	desc, err := ReadDescriptor(cfg.Path)
	require.NoError(t, err)
	assert.Equal(t, "fake", desc.EmbeddingModel)
	assert.Equal(t, 32, desc.Dimension)
	assert.Equal(t, 3, desc.ChunkCount)
	assert.Equal(t, "memory", desc.Backend)

	loaded, err := LoadOrNone(cfg, embedder)
	require.NoError(t, err)
	defer loaded.Close()

	count, err := loaded.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := loaded.AsRetriever(2).Retrieve(ctx, "banana smoothie with yogurt")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "banana smoothie with yogurt", results[0].Document.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "data/a.pdf", results[0].Document.Metadata[document.MetaSource])
}

func TestCreateRequiresChunks(t *testing.T) {
	_, err := Create(context.Background(), testConfig(t), nil, embeddingtest.New("fake", 8))
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestCreateRefusesExistingIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	embedder := embeddingtest.New("fake", 8)

	store, err := Create(ctx, cfg, []document.Chunk{chunk("a.txt", 0, "hello world")}, embedder)
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	_, err = Create(ctx, cfg, []document.Chunk{chunk("b.txt", 0, "again")}, embedder)
	assert.ErrorIs(t, err, ErrIndexExists)
}

func TestLoadOrNoneEmbedderMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, err := Create(ctx, cfg, []document.Chunk{chunk("a.txt", 0, "hello world")}, embeddingtest.New("model-a", 16))
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	t.Run("other model name", func(t *testing.T) {
		_, err := LoadOrNone(cfg, embeddingtest.New("model-b", 16))
		assert.ErrorIs(t, err, ErrEmbedderMismatch)
	})

	t.Run("other dimension", func(t *testing.T) {
		_, err := LoadOrNone(cfg, embeddingtest.New("model-a", 8))
		assert.ErrorIs(t, err, ErrEmbedderMismatch)
	})
}

func TestAddFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	embedder := embeddingtest.New("fake", 16)

	store, err := Create(ctx, cfg, []document.Chunk{chunk("a.txt", 0, "first document")}, embedder)
	require.NoError(t, err)

	embedder.FailOn("poison")
	err = store.Add(ctx, []document.Chunk{
		chunk("b.txt", 0, "fine text"),
		chunk("b.txt", 1, "fine text again"),
		chunk("b.txt", 2, "poison pill"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddingtest.ErrInjected)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, map[string]int{"a.txt": 1}, store.Sources())
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, err := Create(ctx, cfg, []document.Chunk{
		chunk("a.txt", 0, "old version"),
		chunk("a.txt", 1, "old version part two"),
	}, embeddingtest.New("fake", 16))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSource("a.txt"))
	require.NoError(t, store.Add(ctx, []document.Chunk{chunk("a.txt", 0, "new version")}))
	require.NoError(t, store.Persist())

	assert.Equal(t, map[string]int{"a.txt": 1}, store.Sources())
	assert.Equal(t, 1, store.Descriptor().ChunkCount)
}

func TestCreateClearsOrphanedData(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	embedder := embeddingtest.New("fake", 16)

	store, err := Create(ctx, cfg, []document.Chunk{chunk("old.txt", 0, "orphan")}, embedder)
	require.NoError(t, err)
	require.NoError(t, store.Persist())
	// 模拟描述文件写入前中断
	require.NoError(t, os.Remove(DescriptorPath(cfg.Path)))

	store, err = Create(ctx, cfg, []document.Chunk{chunk("new.txt", 0, "fresh")}, embedder)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"new.txt": 1}, store.Sources())
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	embedder := embeddingtest.New("fake", 16)

	store, err := Create(ctx, testConfig(t), []document.Chunk{
		chunk("a.txt", 0, "old one"),
		chunk("a.txt", 1, "old two"),
		chunk("b.txt", 0, "other file"),
	}, embedder)
	require.NoError(t, err)

	t.Run("embedding failure keeps old chunks", func(t *testing.T) {
		embedder.FailOn("poison")
		defer embedder.FailOn("")

		err := store.Replace(ctx, "a.txt", []document.Chunk{chunk("a.txt", 0, "poison")})
		assert.ErrorIs(t, err, embeddingtest.ErrInjected)
		assert.Equal(t, map[string]int{"a.txt": 2, "b.txt": 1}, store.Sources())
	})

	require.NoError(t, store.Replace(ctx, "a.txt", []document.Chunk{chunk("a.txt", 0, "new")}))
	assert.Equal(t, map[string]int{"a.txt": 1, "b.txt": 1}, store.Sources())

	// 空分块相当于删除
	require.NoError(t, store.Replace(ctx, "b.txt", nil))
	assert.Equal(t, map[string]int{"a.txt": 1}, store.Sources())
}
