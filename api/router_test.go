package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/api/handler"
	"github.com/fyerfyer/doc-rag-assistant/api/model"
	"github.com/fyerfyer/doc-rag-assistant/internal/database"
	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/ingest"
	"github.com/fyerfyer/doc-rag-assistant/internal/llm"
	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
	"github.com/fyerfyer/doc-rag-assistant/internal/manifest"
	"github.com/fyerfyer/doc-rag-assistant/internal/models"
	"github.com/fyerfyer/doc-rag-assistant/internal/repository"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
	"github.com/fyerfyer/doc-rag-assistant/pkg/taskqueue"
)

type fakeSearcher struct {
	results []retrieval.Result
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]retrieval.Result, error) {
	return f.results, f.err
}

type fakeChatter struct {
	resp *llm.Response
	err  error
}

func (f *fakeChatter) Chat(_ context.Context, question string) (*llm.Response, error) {
	return f.resp, f.err
}

type fakeRunner struct {
	report   *ingest.Report
	err      error
	triggers []string
}

func (f *fakeRunner) RunAs(_ context.Context, trigger string) (*ingest.Report, error) {
	f.triggers = append(f.triggers, trigger)
	return f.report, f.err
}

type fakeStats struct {
	sources map[string]int
}

func (f *fakeStats) Sources() (map[string]int, error) {
	return f.sources, nil
}

// testEnv 测试环境
type testEnv struct {
	sourceDir    string
	manifestPath string
	searcher     *fakeSearcher
	chatter      *fakeChatter
	runner       *fakeRunner
	runs         repository.RunRepository
	queue        taskqueue.Queue
}

func openTestDB(t *testing.T) *gorm.DB {
	dbName := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	root := t.TempDir()
	env := &testEnv{
		sourceDir:    filepath.Join(root, "data"),
		manifestPath: filepath.Join(root, "processed_files.json"),
		searcher:     &fakeSearcher{},
		chatter:      &fakeChatter{},
		runner:       &fakeRunner{report: &ingest.Report{RunID: "run-1", Processed: 2, Files: []ingest.FileResult{}}},
		runs:         repository.NewRunRepository(openTestDB(t)),
	}
	require.NoError(t, os.MkdirAll(env.sourceDir, 0755))
	return env
}

func (e *testEnv) router(stats handler.IndexStats) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()
	return SetupRouter(logger, Handlers{
		Search: handler.NewSearchHandler(e.searcher, logger),
		Ingest: handler.NewIngestHandler(e.runner, e.queue, e.sourceDir, logger),
		Document: handler.NewDocumentHandler(
			e.sourceDir,
			document.NewDefaultRegistry(false),
			manifest.NewJSONStore(e.manifestPath),
			stats,
			logger,
		),
		Run:  handler.NewRunHandler(e.runs),
		Chat: handler.NewChatHandler(e.chatter, logger),
	})
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, model.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	r := newTestEnv(t).router(nil)
	w, _ := doJSON(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestSearch(t *testing.T) {
	t.Run("returns results", func(t *testing.T) {
		env := newTestEnv(t)
		env.searcher.results = []retrieval.Result{{
			Text:     "passport expires 2027",
			Score:    0.9,
			Metadata: map[string]interface{}{document.MetaSource: "data/passport.pdf"},
		}}
		r := env.router(nil)

		w, resp := doJSON(t, r, http.MethodPost, "/api/search", model.SearchRequest{Query: "passport"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, resp.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(1), data["count"])
		results := data["results"].([]interface{})
		first := results[0].(map[string]interface{})
		assert.Equal(t, "data/passport.pdf", first["source"])
	})

	t.Run("missing query", func(t *testing.T) {
		r := newTestEnv(t).router(nil)
		w, resp := doJSON(t, r, http.MethodPost, "/api/search", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("missing index", func(t *testing.T) {
		env := newTestEnv(t)
		env.searcher.err = fmt.Errorf("%w at db: run ingestion first", index.ErrIndexNotFound)
		r := env.router(nil)

		w, resp := doJSON(t, r, http.MethodPost, "/api/search", model.SearchRequest{Query: "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NotEmpty(t, resp.TraceID)
	})

	t.Run("blank query", func(t *testing.T) {
		env := newTestEnv(t)
		env.searcher.err = retrieval.ErrEmptyQuery
		r := env.router(nil)

		w, _ := doJSON(t, r, http.MethodPost, "/api/search", model.SearchRequest{Query: "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChat(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		env := newTestEnv(t)
		env.chatter.resp = &llm.Response{
			Answer:  "Your passport expires in 2027.",
			Sources: []string{"Retrieved from: search_personal_docs"},
		}
		r := env.router(nil)

		w, resp := doJSON(t, r, http.MethodPost, "/api/chat", model.ChatRequest{Question: "When does my passport expire?"})
		assert.Equal(t, http.StatusOK, w.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "Your passport expires in 2027.", data["answer"])
		assert.Equal(t, []interface{}{"Retrieved from: search_personal_docs"}, data["sources"])
	})

	t.Run("model unavailable", func(t *testing.T) {
		env := newTestEnv(t)
		env.chatter.err = fmt.Errorf("%w: 503", llm.ErrServerError)
		r := env.router(nil)

		w, _ := doJSON(t, r, http.MethodPost, "/api/chat", model.ChatRequest{Question: "hi"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestIngest(t *testing.T) {
	t.Run("synchronous run", func(t *testing.T) {
		env := newTestEnv(t)
		r := env.router(nil)

		w, resp := doJSON(t, r, http.MethodPost, "/api/ingest", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{handler.TriggerAPI}, env.runner.triggers)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "run-1", data["run_id"])
		assert.Equal(t, float64(2), data["processed"])
	})

	t.Run("missing source dir", func(t *testing.T) {
		env := newTestEnv(t)
		env.runner.err = fmt.Errorf("%w: data", ingest.ErrSourceDirNotFound)
		r := env.router(nil)

		w, _ := doJSON(t, r, http.MethodPost, "/api/ingest", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("async without queue", func(t *testing.T) {
		env := newTestEnv(t)
		r := env.router(nil)

		w, _ := doJSON(t, r, http.MethodPost, "/api/ingest", model.IngestRequest{Async: true})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Empty(t, env.runner.triggers)
	})

	t.Run("async with queue", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := taskqueue.DefaultConfig()
		cfg.RedisAddr = mr.Addr()
		queue, err := taskqueue.NewRedisQueue(cfg, logging.Discard())
		require.NoError(t, err)
		defer queue.Close()

		env := newTestEnv(t)
		env.queue = queue
		r := env.router(nil)

		w, resp := doJSON(t, r, http.MethodPost, "/api/ingest", model.IngestRequest{Async: true})
		require.Equal(t, http.StatusAccepted, w.Code)
		taskID := resp.Data.(map[string]interface{})["task_id"].(string)
		assert.NotEmpty(t, taskID)

		// 同一源目录的任务尚未完成时拒绝重复提交
		w, _ = doJSON(t, r, http.MethodPost, "/api/ingest", model.IngestRequest{Async: true})
		assert.Equal(t, http.StatusConflict, w.Code)

		w, resp = doJSON(t, r, http.MethodGet, "/api/ingest/tasks/"+taskID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, string(taskqueue.StatusPending), resp.Data.(map[string]interface{})["status"])

		w, _ = doJSON(t, r, http.MethodGet, "/api/ingest/tasks/unknown", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRuns(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(-time.Minute)
	for i, status := range []models.RunStatus{models.RunStatusSucceeded, models.RunStatusFailed, models.RunStatusNoChanges} {
		require.NoError(t, env.runs.Create(&models.IngestRun{
			ID:          fmt.Sprintf("run-%d", i),
			TriggeredBy: "cli",
			Status:      status,
			StartedAt:   start.Add(time.Duration(i) * time.Second),
		}))
	}
	r := env.router(nil)

	t.Run("list", func(t *testing.T) {
		w, resp := doJSON(t, r, http.MethodGet, "/api/runs?page=1&page_size=2", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(3), data["total"])
		runs := data["runs"].([]interface{})
		require.Len(t, runs, 2)
		assert.Equal(t, "run-2", runs[0].(map[string]interface{})["id"])
	})

	t.Run("filter by status", func(t *testing.T) {
		w, resp := doJSON(t, r, http.MethodGet, "/api/runs?status=failed", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["total"])
	})

	t.Run("invalid status", func(t *testing.T) {
		w, _ := doJSON(t, r, http.MethodGet, "/api/runs?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w, resp := doJSON(t, r, http.MethodGet, "/api/runs/run-1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "failed", resp.Data.(map[string]interface{})["status"])

		w, _ = doJSON(t, r, http.MethodGet, "/api/runs/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func upload(t *testing.T, r http.Handler, filename, content string) (*httptest.ResponseRecorder, model.Response) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestDocuments(t *testing.T) {
	env := newTestEnv(t)

	t.Run("upload supported file", func(t *testing.T) {
		r := env.router(nil)
		w, resp := upload(t, r, "report.pdf", "%PDF-1.4 fake")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "report.pdf", resp.Data.(map[string]interface{})["filename"])

		data, err := os.ReadFile(filepath.Join(env.sourceDir, "report.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 fake", string(data))
	})

	t.Run("upload rejects unsupported file", func(t *testing.T) {
		r := env.router(nil)
		w, _ := upload(t, r, "photo.png", "png")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoFileExists(t, filepath.Join(env.sourceDir, "photo.png"))
	})

	t.Run("upload strips directories", func(t *testing.T) {
		r := env.router(nil)
		w, _ := upload(t, r, "../../escape.docx", "docx")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.FileExists(t, filepath.Join(env.sourceDir, "escape.docx"))
	})

	t.Run("list shows index state", func(t *testing.T) {
		path := filepath.Join(env.sourceDir, "report.pdf")
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.NoError(t, manifest.NewJSONStore(env.manifestPath).Save(context.Background(), manifest.Manifest{
			"report.pdf": manifest.ModTime(info),
		}))

		r := env.router(&fakeStats{sources: map[string]int{path: 7}})
		w, resp := doJSON(t, r, http.MethodGet, "/api/documents", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(2), data["total"])
		docs := data["documents"].([]interface{})

		escape := docs[0].(map[string]interface{})
		assert.Equal(t, "escape.docx", escape["filename"])
		assert.Equal(t, false, escape["indexed"])

		report := docs[1].(map[string]interface{})
		assert.Equal(t, "report.pdf", report["filename"])
		assert.Equal(t, true, report["indexed"])
		assert.Equal(t, true, report["supported"])
		assert.Equal(t, float64(7), report["chunks"])
	})
}

func TestPanicRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.err = errors.New("boom")
	r := env.router(nil)
	r.GET("/api/panic", func(c *gin.Context) { panic("kaboom") })

	w, resp := doJSON(t, r, http.MethodGet, "/api/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/search", model.SearchRequest{Query: "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
