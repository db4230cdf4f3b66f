package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required"` // 检索语句
}

// ChatRequest 对话请求
type ChatRequest struct {
	Question string `json:"question" binding:"required"` // 问题内容
}

// IngestRequest 导入请求
type IngestRequest struct {
	Async bool `json:"async"` // 通过任务队列异步执行
}

// TaskRequest 任务查询请求
type TaskRequest struct {
	ID string `uri:"id" binding:"required"` // 任务ID
}

// RunRequest 运行记录查询请求
type RunRequest struct {
	ID string `uri:"id" binding:"required"` // 运行ID
}

// RunListRequest 运行记录列表请求
type RunListRequest struct {
	PaginationRequest
	Status      string `form:"status" binding:"omitempty,oneof=running succeeded no_changes failed"` // 运行状态
	TriggeredBy string `form:"triggered_by" binding:"omitempty"`                                    // 触发方式
}
