package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/internal/database"
	"github.com/fyerfyer/doc-rag-assistant/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")
	t.Cleanup(func() { database.Close(db) })
	return db
}

func TestFailureRepository_RecordFailure(t *testing.T) {
	repo := NewFailureRepository(setupTestDB(t))

	count, err := repo.RecordFailure("report.pdf", 100.5, "broken xref")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.RecordFailure("report.pdf", 100.5, "broken xref again")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err := repo.FailureCount("report.pdf", 100.5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	t.Run("modified file resets count", func(t *testing.T) {
		n, err := repo.FailureCount("report.pdf", 200)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		count, err := repo.RecordFailure("report.pdf", 200, "still broken")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	failures, err := repo.List()
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "still broken", failures[0].LastError)
}

func TestFailureRepository_Clear(t *testing.T) {
	repo := NewFailureRepository(setupTestDB(t))

	_, err := repo.RecordFailure("a.docx", 1, "bad zip")
	require.NoError(t, err)
	require.NoError(t, repo.Clear("a.docx"))

	n, err := repo.FailureCount("a.docx", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// 清除不存在的记录不报错
	assert.NoError(t, repo.Clear("missing.docx"))
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	repo := NewRunRepository(setupTestDB(t))

	run := &models.IngestRun{TriggeredBy: "cli"}
	require.NoError(t, repo.Create(run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	finished := time.Now()
	run.Status = models.RunStatusSucceeded
	run.Processed = 2
	run.Chunks = 17
	run.FinishedAt = &finished
	run.Details = datatypes.JSON(`[{"file":"a.pdf","outcome":"processed"}]`)
	require.NoError(t, repo.Update(run))

	saved, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, saved.Status)
	assert.Equal(t, 17, saved.Chunks)
	assert.NotNil(t, saved.FinishedAt)
	assert.JSONEq(t, `[{"file":"a.pdf","outcome":"processed"}]`, string(saved.Details))

	_, err = repo.GetByID("nope")
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	assert.Error(t, repo.Update(&models.IngestRun{}))
}

func TestRunRepository_List(t *testing.T) {
	repo := NewRunRepository(setupTestDB(t))

	base := time.Now().Add(-time.Hour)
	statuses := []models.RunStatus{
		models.RunStatusSucceeded,
		models.RunStatusNoChanges,
		models.RunStatusFailed,
		models.RunStatusNoChanges,
	}
	for i, status := range statuses {
		require.NoError(t, repo.Create(&models.IngestRun{
			TriggeredBy: "queue",
			Status:      status,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, total, err := repo.List(0, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))

	runs, total, err = repo.List(0, 10, map[string]interface{}{"status": string(models.RunStatusNoChanges)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs, 2)
}
