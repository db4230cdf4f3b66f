package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
)

// fakeTool 记录调用的工具
type fakeTool struct {
	name    string
	output  string
	err     error
	queries []string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }

func (f *fakeTool) Invoke(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.output, f.err
}

// chatServer 按顺序返回预设的助手消息
type chatServer struct {
	mu       sync.Mutex
	replies  []openai.ChatCompletionMessage
	status   int
	requests []openai.ChatCompletionRequest
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req openai.ChatCompletionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.requests = append(s.requests, req)

	if s.status != 0 {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		return
	}

	idx := len(s.requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	resp := openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:   0,
			Message: s.replies[idx],
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestAgent(t *testing.T, server *chatServer, tools []Tool, opts ...Option) *Agent {
	t.Helper()
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithAPIKey("test-key"), WithBaseURL(srv.URL)}, opts...)
	agent, err := NewAgent(logging.Discard(), tools, opts...)
	require.NoError(t, err)
	return agent
}

func toolCall(id, name, args string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
	}
}

func answer(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
}

func TestNewAgentRequiresAPIKey(t *testing.T) {
	_, err := NewAgent(logging.Discard(), nil)
	assert.True(t, errors.Is(err, ErrInvalidAPIKey))
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	t.Run("answers with tool source", func(t *testing.T) {
		tool := &fakeTool{name: "search_personal_docs", output: "the lease ends in March"}
		server := &chatServer{replies: []openai.ChatCompletionMessage{
			toolCall("call_1", "search_personal_docs", `{"query":"lease end"}`),
			answer("Your lease ends in March."),
		}}
		agent := newTestAgent(t, server, []Tool{tool})

		resp, err := agent.Chat(ctx, "When does my lease end?")
		require.NoError(t, err)
		assert.Equal(t, "Your lease ends in March.", resp.Answer)
		assert.Equal(t, []string{"Retrieved from: search_personal_docs"}, resp.Sources)
		assert.Equal(t, 2, resp.Steps)
		assert.Equal(t, []string{"lease end"}, tool.queries)

		require.Len(t, server.requests, 2)
		first := server.requests[0]
		require.Len(t, first.Tools, 1)
		assert.Equal(t, "search_personal_docs", first.Tools[0].Function.Name)
		assert.Equal(t, openai.ChatMessageRoleSystem, first.Messages[0].Role)

		second := server.requests[1]
		last := second.Messages[len(second.Messages)-1]
		assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
		assert.Equal(t, "call_1", last.ToolCallID)
		assert.Equal(t, "the lease ends in March", last.Content)
	})

	t.Run("answers without tools", func(t *testing.T) {
		server := &chatServer{replies: []openai.ChatCompletionMessage{answer("Hello!")}}
		agent := newTestAgent(t, server, []Tool{&fakeTool{name: "search_personal_docs"}})

		resp, err := agent.Chat(ctx, "hi")
		require.NoError(t, err)
		assert.Equal(t, "Hello!", resp.Answer)
		assert.Empty(t, resp.Sources)
		assert.Equal(t, 1, resp.Steps)
	})

	t.Run("rejects empty question", func(t *testing.T) {
		agent := newTestAgent(t, &chatServer{}, nil)
		_, err := agent.Chat(ctx, "   ")
		assert.True(t, errors.Is(err, ErrEmptyPrompt))
	})

	t.Run("tool error aborts", func(t *testing.T) {
		toolErr := errors.New("index not found")
		tool := &fakeTool{name: "search_personal_docs", err: toolErr}
		server := &chatServer{replies: []openai.ChatCompletionMessage{
			toolCall("call_1", "search_personal_docs", `{"query":"x"}`),
		}}
		agent := newTestAgent(t, server, []Tool{tool})

		_, err := agent.Chat(ctx, "anything")
		assert.True(t, errors.Is(err, toolErr))
	})

	t.Run("unknown tool is reported to the model", func(t *testing.T) {
		server := &chatServer{replies: []openai.ChatCompletionMessage{
			toolCall("call_1", "delete_everything", `{}`),
			answer("I cannot do that."),
		}}
		agent := newTestAgent(t, server, []Tool{&fakeTool{name: "search_personal_docs"}})

		resp, err := agent.Chat(ctx, "wipe my files")
		require.NoError(t, err)
		assert.Empty(t, resp.Sources)

		msgs := server.requests[1].Messages
		assert.Contains(t, msgs[len(msgs)-1].Content, "unknown tool")
	})

	t.Run("stops after max steps", func(t *testing.T) {
		tool := &fakeTool{name: "search_personal_docs", output: "nothing"}
		server := &chatServer{replies: []openai.ChatCompletionMessage{
			toolCall("call_1", "search_personal_docs", `{"query":"again"}`),
		}}
		agent := newTestAgent(t, server, []Tool{tool}, WithMaxSteps(2))

		_, err := agent.Chat(ctx, "loop forever")
		assert.True(t, errors.Is(err, ErrTooManySteps))
		assert.Len(t, tool.queries, 2)
		assert.Len(t, server.requests, 3)
	})

	t.Run("server error is classified", func(t *testing.T) {
		server := &chatServer{status: http.StatusInternalServerError}
		agent := newTestAgent(t, server, nil)

		_, err := agent.Chat(ctx, "hello")
		assert.True(t, errors.Is(err, ErrServerError))
	})
}
