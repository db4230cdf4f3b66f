package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Is 按错误码比较，便于 errors.Is 匹配预定义错误
func (e LLMError) Is(target error) bool {
	t, ok := target.(LLMError)
	return ok && t.Code == e.Code
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyPrompt    = 1007 // 问题为空
	ErrCodeEmptyResponse  = 1008 // 响应中没有候选结果
	ErrCodeTooManySteps   = 1009 // 工具调用轮数超限
)

// 预定义错误
var (
	ErrInvalidAPIKey  = NewLLMError(ErrCodeInvalidAPIKey, "invalid API key")
	ErrRateLimited    = NewLLMError(ErrCodeRateLimited, "too many requests, rate limit exceeded")
	ErrServerError    = NewLLMError(ErrCodeServerError, "server error occurred")
	ErrTimeout        = NewLLMError(ErrCodeTimeout, "request timed out")
	ErrEmptyPrompt    = NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	ErrEmptyResponse  = NewLLMError(ErrCodeEmptyResponse, "model returned no choices")
	ErrTooManySteps   = NewLLMError(ErrCodeTooManySteps, "tool call limit reached without a final answer")
	ErrNetworkError   = NewLLMError(ErrCodeNetworkError, "network connection error")
	ErrInvalidRequest = NewLLMError(ErrCodeInvalidRequest, "invalid request parameters")
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}

// classifyError 将API错误映射为LLMError
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case status >= 500:
		return fmt.Errorf("%w: %v", ErrServerError, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
}
