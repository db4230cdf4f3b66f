// Package llm 基于OpenAI兼容接口的工具调用对话代理
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sirupsen/logrus"
)

// Tool 可供模型调用的工具
// 输入为一段自由文本查询，输出为交给模型的文本
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, query string) (string, error)
}

// toolArguments 工具调用参数
type toolArguments struct {
	Query string `json:"query"`
}

// Agent 对话代理
// 每次调用Chat都是独立的一轮，不保留历史
type Agent struct {
	client *openai.Client
	config Config
	tools  map[string]Tool
	specs  []openai.Tool
	logger *logrus.Logger
}

// NewAgent 创建对话代理
func NewAgent(logger *logrus.Logger, tools []Tool, opts ...Option) (*Agent, error) {
	config := NewConfig(opts...)
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	agent := &Agent{
		client: openai.NewClientWithConfig(clientConfig),
		config: *config,
		tools:  make(map[string]Tool, len(tools)),
		logger: logger,
	}
	for _, tool := range tools {
		agent.tools[tool.Name()] = tool
		agent.specs = append(agent.specs, toolSpec(tool))
	}
	return agent, nil
}

// toolSpec 生成工具的函数声明
func toolSpec(tool Tool) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {
						Type:        jsonschema.String,
						Description: "Search query describing the information to look up",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

// Name 返回模型名称
func (a *Agent) Name() string {
	return a.config.Model
}

// Chat 回答一个问题
// 模型请求工具时执行工具并把结果交回模型，直到模型给出最终回答
func (a *Agent) Chat(ctx context.Context, question string) (*Response, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyPrompt
	}

	messages := make([]openai.ChatCompletionMessage, 0, 4)
	if a.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: a.config.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	used := make(map[string]struct{})
	// 最多MaxSteps轮工具调用，再加一次生成最终回答
	for step := 1; step <= a.config.MaxSteps+1; step++ {
		msg, err := a.complete(ctx, messages)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			return &Response{
				Answer:  msg.Content,
				Sources: sources(used),
				Steps:   step,
			}, nil
		}
		if step > a.config.MaxSteps {
			break
		}

		for _, call := range msg.ToolCalls {
			content, err := a.callTool(ctx, call)
			if err != nil {
				return nil, err
			}
			if _, ok := a.tools[call.Function.Name]; ok {
				used[call.Function.Name] = struct{}{}
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Name:       call.Function.Name,
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, ErrTooManySteps
}

// complete 发送一次补全请求并返回助手消息
func (a *Agent) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.config.Model,
		Messages:    messages,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
	}
	if len(a.specs) > 0 {
		req.Tools = a.specs
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, ErrEmptyResponse
	}
	return resp.Choices[0].Message, nil
}

// callTool 执行一次工具调用
// 未知工具和参数错误作为文本交回模型，工具本身的错误直接返回
func (a *Agent) callTool(ctx context.Context, call openai.ToolCall) (string, error) {
	tool, ok := a.tools[call.Function.Name]
	if !ok {
		a.logger.WithField("tool", call.Function.Name).Warn("Model requested unknown tool")
		return fmt.Sprintf("unknown tool %q", call.Function.Name), nil
	}

	var args toolArguments
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), nil
	}

	a.logger.WithFields(logrus.Fields{
		"tool":  call.Function.Name,
		"query": args.Query,
	}).Debug("Calling tool")

	content, err := tool.Invoke(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", call.Function.Name, err)
	}
	return content, nil
}

// sources 按名称排序的引用来源
func sources(used map[string]struct{}) []string {
	out := make([]string, 0, len(used))
	for name := range used {
		out = append(out, SourcePrefix+name)
	}
	sort.Strings(out)
	return out
}
