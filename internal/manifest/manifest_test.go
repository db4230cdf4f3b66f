package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/internal/database"
)

func testStores(t *testing.T) map[string]Store {
	dbName := fmt.Sprintf("file:manifest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db) })

	return map[string]Store{
		"json":   NewJSONStore(filepath.Join(t.TempDir(), "processed_files.json")),
		"sqlite": NewSQLStore(db),
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			// 不存在时返回空清单
			m, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, m)

			m["report.pdf"] = 1714000000.25
			m["notes.docx"] = 1714000100.5
			require.NoError(t, store.Save(ctx, m))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, m, loaded)

			// 覆盖而不是合并
			require.NoError(t, store.Save(ctx, Manifest{"only.xlsx": 1}))
			loaded, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, Manifest{"only.xlsx": 1}, loaded)
		})
	}
}

func TestJSONStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	store := NewJSONStore(path)
	require.NoError(t, store.Save(context.Background(), Manifest{"a.pdf": 12.5}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.pdf": 12.5}`, string(data))
}

func TestJSONStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewJSONStore(path).Load(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestNeedsProcessing(t *testing.T) {
	m := Manifest{"a.pdf": 100}

	assert.True(t, m.NeedsProcessing("b.pdf", 1))
	assert.False(t, m.NeedsProcessing("a.pdf", 100))
	assert.False(t, m.NeedsProcessing("a.pdf", 99))
	assert.True(t, m.NeedsProcessing("a.pdf", 100.001))
}

func TestModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	ts := time.Unix(1700000000, 500_000_000)
	require.NoError(t, os.Chtimes(path, ts, ts))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.InDelta(t, 1700000000.5, ModTime(info), 1e-6)
}

func TestNew(t *testing.T) {
	s, err := New("json", "m.json", nil)
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	_, err = New("sqlite", "", nil)
	assert.ErrorIs(t, err, ErrNoDatabase)

	_, err = New("yaml", "", nil)
	assert.Error(t, err)
}
