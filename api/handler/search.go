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
	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
)

// Searcher 检索接口，由retrieval.Tool实现
type Searcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Result, error)
}

// SearchHandler 处理检索请求
type SearchHandler struct {
	searcher Searcher       // 检索工具
	logger   *logrus.Logger // 日志记录器
}

// NewSearchHandler 创建新的检索处理器
func NewSearchHandler(searcher Searcher, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		logger:   logger,
	}
}

// Search 检索个人文档
// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), req.Query)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			logging.FieldQuery: req.Query,
			logging.FieldError: err.Error(),
		}).Warn("Search request failed")
		middleware.HandleError(c, searchError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SearchResponse{
		Query:   req.Query,
		Count:   len(results),
		Results: model.ConvertSearchResults(results),
	}))
}

// searchError 将检索错误映射为应用错误
func searchError(err error) middleware.AppError {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery):
		return middleware.NewValidationError("检索语句不能为空")
	case errors.Is(err, index.ErrIndexNotFound):
		return middleware.NewNotFoundError("索引不存在，请先执行导入")
	case errors.Is(err, index.ErrEmbedderMismatch):
		return middleware.NewBusinessError("索引与当前嵌入模型不一致，请重新导入", err.Error())
	default:
		return middleware.NewInternalError("检索失败", err.Error())
	}
}
