package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

// Queue 定义任务队列的接口
// 负责任务的入队、获取状态和结果等操作
type Queue interface {
	// Enqueue 将任务加入队列
	// 同类型同载荷的任务尚未完成时返回 ErrDuplicateTask
	Enqueue(ctx context.Context, taskType TaskType, payload interface{}) (string, error)

	// GetTask 获取任务信息
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// WaitForTask 等待任务完成并返回结果
	// timeout为0表示不设置超时
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// Close 关闭队列连接
	Close() error
}

// Handler 任务处理器接口
// 负责实际执行任务的逻辑，返回值作为任务结果保存
type Handler interface {
	ProcessTask(ctx context.Context, task *Task) (interface{}, error)
}

// HandlerFunc 函数形式的任务处理器
type HandlerFunc func(ctx context.Context, task *Task) (interface{}, error)

// ProcessTask 实现Handler接口
func (f HandlerFunc) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	return f(ctx, task)
}

// Worker 工作者接口
// 负责运行一组Handler来处理队列中的任务
type Worker interface {
	// RegisterHandler 注册任务处理器
	RegisterHandler(taskType TaskType, handler Handler)

	// Start 启动工作者，开始处理任务
	Start() error

	// Stop 停止工作者
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string        // Redis地址
	RedisPassword string        // Redis密码
	RedisDB       int           // Redis数据库
	Queue         string        // asynq队列名称
	Concurrency   int           // 并发处理任务数
	RetryLimit    int           // 最大重试次数
	RetryDelay    time.Duration // 重试延迟
	UniqueTTL     time.Duration // 去重锁的有效期
	TaskExpiry    time.Duration // 任务记录保存时间
}

// DefaultConfig 返回默认配置
// 导入任务写同一个索引，只允许单并发
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Queue:       "default",
		Concurrency: 1,
		RetryLimit:  0,
		RetryDelay:  time.Minute,
		UniqueTTL:   time.Hour,
		TaskExpiry:  7 * 24 * time.Hour,
	}
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout 任务超时错误
var ErrTaskTimeout = TaskError("task timed out")

// ErrDuplicateTask 已有相同任务在排队或处理中
var ErrDuplicateTask = TaskError("an identical task is already queued")

// TaskError 任务错误类型
type TaskError string

// Error 实现error接口
func (e TaskError) Error() string {
	return string(e)
}

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
