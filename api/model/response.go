package model

import (
	"time"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/models"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SearchResult 单条检索结果
type SearchResult struct {
	Text     string                 `json:"text"`     // 分块文本
	Source   string                 `json:"source"`   // 来源文件
	Score    float32                `json:"score"`    // 相似度得分
	Metadata map[string]interface{} `json:"metadata"` // 元数据
}

// SearchResponse 检索响应
type SearchResponse struct {
	Query   string         `json:"query"`   // 检索语句
	Count   int            `json:"count"`   // 结果数量
	Results []SearchResult `json:"results"` // 结果列表
}

// ConvertSearchResults 将检索结果转换为响应结构
func ConvertSearchResults(results []retrieval.Result) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		source, _ := r.Metadata[document.MetaSource].(string)
		out[i] = SearchResult{
			Text:     r.Text,
			Source:   source,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
	}
	return out
}

// ChatResponse 对话响应
type ChatResponse struct {
	Question string   `json:"question"` // 用户问题
	Answer   string   `json:"answer"`   // 模型回答
	Sources  []string `json:"sources"`  // 使用过的工具
}

// IngestTaskResponse 异步导入响应
type IngestTaskResponse struct {
	TaskID string `json:"task_id"` // 任务ID
	Status string `json:"status"`  // 任务状态
}

// DocumentInfo 源目录中的文件
type DocumentInfo struct {
	FileName  string     `json:"filename"`             // 文件名
	Size      int64      `json:"size"`                 // 文件大小
	ModTime   time.Time  `json:"mod_time"`             // 修改时间
	Supported bool       `json:"supported"`            // 是否有对应的加载器
	Indexed   bool       `json:"indexed"`              // 当前版本是否已导入
	IndexedAt *time.Time `json:"indexed_at,omitempty"` // 已导入版本的修改时间
	Chunks    int        `json:"chunks"`               // 索引中的分块数
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int            `json:"total"`     // 总数量
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileName string `json:"filename"` // 文件名
	Size     int64  `json:"size"`     // 文件大小
}

// RunInfo 运行记录
type RunInfo struct {
	ID          string     `json:"id"`
	TriggeredBy string     `json:"triggered_by"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Processed   int        `json:"processed"`
	Skipped     int        `json:"skipped"`
	Unsupported int        `json:"unsupported"`
	Failed      int        `json:"failed"`
	Quarantined int        `json:"quarantined"`
	Chunks      int        `json:"chunks"`
	Error       string     `json:"error,omitempty"`
}

// ConvertRun 将运行记录转换为响应结构
func ConvertRun(run *models.IngestRun) RunInfo {
	return RunInfo{
		ID:          run.ID,
		TriggeredBy: run.TriggeredBy,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Processed:   run.Processed,
		Skipped:     run.Skipped,
		Unsupported: run.Unsupported,
		Failed:      run.Failed,
		Quarantined: run.Quarantined,
		Chunks:      run.Chunks,
		Error:       run.Error,
	}
}

// RunListResponse 运行记录列表响应
type RunListResponse struct {
	PaginationResponse
	Runs []RunInfo `json:"runs"` // 运行记录
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int `json:"total"`     // 总记录数
	Page     int `json:"page"`      // 当前页码
	PageSize int `json:"page_size"` // 每页大小
}
