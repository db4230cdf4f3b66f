package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Source.Dir)
	assert.Equal(t, "processed_files.json", cfg.Manifest.Path)
	assert.Equal(t, "./db", cfg.VectorDB.Path)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, 100, cfg.Document.ChunkOverlap)
	assert.Equal(t, "skip-unsupported", cfg.Ingest.UnsupportedPolicy)
	assert.Equal(t, "abort", cfg.Ingest.FailurePolicy)
	assert.Equal(t, 3, cfg.Ingest.MaxFailures)
	assert.Equal(t, "text-embedding-3-small", cfg.Embed.Model)
	assert.Equal(t, "sk-test", cfg.Embed.APIKey)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
source:
  dir: /srv/docs
vectordb:
  type: memory
  path: /srv/index
document:
  chunk_size: 500
  chunk_overlap: 50
ingest:
  failure_policy: continue
embed:
  api_key: plain-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", cfg.Source.Dir)
	assert.Equal(t, "memory", cfg.VectorDB.Type)
	assert.Equal(t, 500, cfg.Document.ChunkSize)
	assert.Equal(t, 50, cfg.Document.ChunkOverlap)
	assert.Equal(t, "continue", cfg.Ingest.FailurePolicy)
	assert.Equal(t, "plain-key", cfg.Embed.APIKey)
}

func TestValidate(t *testing.T) {
	t.Run("overlap must be smaller than size", func(t *testing.T) {
		cfg := Default()
		cfg.Document.ChunkOverlap = cfg.Document.ChunkSize
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown policy", func(t *testing.T) {
		cfg := Default()
		cfg.Ingest.UnsupportedPolicy = "ignore"
		assert.Error(t, Validate(cfg))
	})

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Validate(Default()))
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
}
