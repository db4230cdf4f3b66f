package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/api/middleware"
	"github.com/fyerfyer/doc-rag-assistant/api/model"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/ingest"
	"github.com/fyerfyer/doc-rag-assistant/pkg/taskqueue"
)

// TriggerAPI 通过HTTP接口触发的导入
const TriggerAPI = "api"

// IngestRunner 导入接口，由ingest.Orchestrator实现
type IngestRunner interface {
	RunAs(ctx context.Context, trigger string) (*ingest.Report, error)
}

// IngestHandler 处理导入请求
type IngestHandler struct {
	runner    IngestRunner    // 同步导入
	queue     taskqueue.Queue // 异步导入，可以为空
	sourceDir string          // 源目录
	logger    *logrus.Logger  // 日志记录器
}

// NewIngestHandler 创建新的导入处理器
func NewIngestHandler(runner IngestRunner, queue taskqueue.Queue, sourceDir string, logger *logrus.Logger) *IngestHandler {
	return &IngestHandler{
		runner:    runner,
		queue:     queue,
		sourceDir: sourceDir,
		logger:    logger,
	}
}

// Ingest 执行一次增量导入
// POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req model.IngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
			return
		}
	}

	if req.Async {
		h.enqueue(c)
		return
	}

	report, err := h.runner.RunAs(c.Request.Context(), TriggerAPI)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrSourceDirNotFound):
			middleware.HandleError(c, middleware.NewBusinessError("源目录不存在", err.Error()))
		case errors.Is(err, index.ErrEmbedderMismatch):
			middleware.HandleError(c, middleware.NewBusinessError("索引与当前嵌入模型不一致，请重新导入", err.Error()))
		default:
			middleware.HandleError(c, middleware.NewInternalError("导入失败", err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(report))
}

// enqueue 提交异步导入任务
func (h *IngestHandler) enqueue(c *gin.Context) {
	if h.queue == nil {
		middleware.HandleError(c, middleware.NewUnavailableError("任务队列未启用"))
		return
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), taskqueue.TaskIngest, &taskqueue.IngestPayload{
		SourceDir: h.sourceDir,
		Trigger:   TriggerAPI,
	})
	if err != nil {
		if errors.Is(err, taskqueue.ErrDuplicateTask) {
			middleware.HandleError(c, middleware.NewConflictError("已有导入任务在排队或执行中"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("提交导入任务失败", err.Error()))
		return
	}

	h.logger.WithField("task_id", taskID).Info("Ingest task queued")
	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.IngestTaskResponse{
		TaskID: taskID,
		Status: string(taskqueue.StatusPending),
	}))
}

// GetTask 查询异步导入任务
// GET /api/ingest/tasks/:id
func (h *IngestHandler) GetTask(c *gin.Context) {
	if h.queue == nil {
		middleware.HandleError(c, middleware.NewUnavailableError("任务队列未启用"))
		return
	}

	var req model.TaskRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的任务ID"))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("任务不存在"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("查询任务失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(task))
}
