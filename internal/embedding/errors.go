package embedding

import "fmt"

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// Is 按错误码比较，便于 errors.Is(err, ErrRateLimited) 这类判断
func (e EmbeddingError) Is(target error) bool {
	t, ok := target.(EmbeddingError)
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
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeBatchTooLarge  = 1008 // 批量过大
	ErrCodeBadResponse    = 1009 // 响应与请求不匹配
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgBatchTooLarge  = "batch exceeds configured size"
	ErrMsgBadResponse    = "unexpected embedding response"
)

// 预定义错误
var (
	ErrInvalidAPIKey = NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	ErrRateLimited   = NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	ErrServerError   = NewEmbeddingError(ErrCodeServerError, ErrMsgServerError)
	ErrTimeout       = NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout)
	ErrEmptyText     = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	ErrBatchTooLarge = NewEmbeddingError(ErrCodeBatchTooLarge, ErrMsgBatchTooLarge)
	ErrBadResponse   = NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}
