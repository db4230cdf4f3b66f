package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/doc-rag-assistant/api/middleware"
	"github.com/fyerfyer/doc-rag-assistant/api/model"
	"github.com/fyerfyer/doc-rag-assistant/internal/models"
	"github.com/fyerfyer/doc-rag-assistant/internal/repository"
)

// RunHandler 查询导入运行记录
type RunHandler struct {
	runs repository.RunRepository
}

// NewRunHandler 创建新的运行记录处理器
func NewRunHandler(runs repository.RunRepository) *RunHandler {
	return &RunHandler{runs: runs}
}

// ListRuns 分页列出运行记录
// GET /api/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.TriggeredBy != "" {
		filters["triggered_by"] = req.TriggeredBy
	}

	runs, total, err := h.runs.WithContext(c.Request.Context()).List(req.Offset(), req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("查询运行记录失败", err.Error()))
		return
	}

	resp := model.RunListResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    int(total),
			Page:     req.GetPage(),
			PageSize: req.GetPageSize(),
		},
		Runs: make([]model.RunInfo, len(runs)),
	}
	for i, run := range runs {
		resp.Runs[i] = model.ConvertRun(run)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetRun 查询单次运行记录
// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的运行ID"))
		return
	}

	run, err := h.runs.WithContext(c.Request.Context()).GetByID(req.ID)
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("运行记录不存在"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("查询运行记录失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertRun(run)))
}
