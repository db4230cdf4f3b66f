package llm

import "time"

// SourcePrefix 引用来源前缀，后接工具名称
const SourcePrefix = "Retrieved from: "

// DefaultSystemPrompt 默认系统提示词
const DefaultSystemPrompt = `You are a personal assistant that answers questions about the user's own documents and notes.
Use the search_personal_docs tool whenever the question may be answered by those files.
If the retrieved context does not contain the answer, say so instead of guessing.`

// Config 对话代理配置
type Config struct {
	APIKey       string        // API密钥
	BaseURL      string        // API基础URL
	Model        string        // 模型名称
	Timeout      time.Duration // 单次请求超时时间
	MaxTokens    int           // 最大生成Token数
	Temperature  float32       // 采样温度(0.0-2.0)
	MaxSteps     int           // 单轮对话中最多的工具调用轮数
	SystemPrompt string        // 系统提示词
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:        "gpt-4o-mini",
		Timeout:      60 * time.Second,
		MaxTokens:    1024,
		Temperature:  0,
		MaxSteps:     4,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Option 配置选项函数类型
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxTokens 设置最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature 设置采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithMaxSteps 设置工具调用轮数上限
func WithMaxSteps(steps int) Option {
	return func(c *Config) {
		c.MaxSteps = steps
	}
}

// WithSystemPrompt 设置系统提示词
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) {
		c.SystemPrompt = prompt
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Response 一轮对话的结果
type Response struct {
	Answer  string   `json:"answer"`  // 最后一条助手消息
	Sources []string `json:"sources"` // 被调用过的工具，如 "Retrieved from: search_personal_docs"
	Steps   int      `json:"steps"`   // 实际的模型调用次数
}
