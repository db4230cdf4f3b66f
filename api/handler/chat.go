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
	"github.com/fyerfyer/doc-rag-assistant/internal/llm"
)

// Chatter 对话接口，由llm.Agent实现
type Chatter interface {
	Chat(ctx context.Context, question string) (*llm.Response, error)
}

// ChatHandler 处理对话请求
type ChatHandler struct {
	agent  Chatter        // 对话代理
	logger *logrus.Logger // 日志记录器
}

// NewChatHandler 创建新的对话处理器
func NewChatHandler(agent Chatter, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		agent:  agent,
		logger: logger,
	}
}

// Chat 回答一个问题
// POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	resp, err := h.agent.Chat(c.Request.Context(), req.Question)
	if err != nil {
		h.logger.WithError(err).Warn("Chat request failed")
		middleware.HandleError(c, chatError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatResponse{
		Question: req.Question,
		Answer:   resp.Answer,
		Sources:  resp.Sources,
	}))
}

func chatError(err error) middleware.AppError {
	switch {
	case errors.Is(err, llm.ErrEmptyPrompt):
		return middleware.NewValidationError("问题不能为空")
	case errors.Is(err, index.ErrIndexNotFound):
		return middleware.NewNotFoundError("索引不存在，请先执行导入")
	case errors.Is(err, llm.ErrInvalidAPIKey),
		errors.Is(err, llm.ErrRateLimited),
		errors.Is(err, llm.ErrServerError),
		errors.Is(err, llm.ErrTimeout),
		errors.Is(err, llm.ErrNetworkError):
		return middleware.NewUnavailableError("大模型服务暂不可用", err.Error())
	default:
		return middleware.NewInternalError("生成回答失败", err.Error())
	}
}
