// Package mcpserver 通过MCP协议暴露检索工具
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
)

// Version MCP服务版本
const Version = "0.1.0"

// IndexResourceURI 索引描述资源
const IndexResourceURI = "docs://index"

// ErrMissingSearcher 没有提供检索工具
var ErrMissingSearcher = errors.New("searcher is required")

// Searcher 检索接口，由retrieval.Tool实现
type Searcher interface {
	Name() string
	Description() string
	Search(ctx context.Context, query string) ([]retrieval.Result, error)
}

// SearchInput 检索工具输入
type SearchInput struct {
	Query string `json:"query" jsonschema:"natural language question or keywords to look up in the user's documents"`
}

// SearchOutput 检索工具输出
type SearchOutput struct {
	Results []ResultOutput `json:"results"`
	Count   int            `json:"count"`
}

// ResultOutput 单条结果
type ResultOutput struct {
	Text     string                 `json:"text"`
	Source   string                 `json:"source,omitempty"`
	Score    float32                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Server MCP服务
type Server struct {
	searcher  Searcher
	indexPath string
	server    *mcp.Server
	logger    *logrus.Logger
}

// NewServer 创建MCP服务
// indexPath非空时额外提供索引描述资源
func NewServer(searcher Searcher, indexPath string, logger *logrus.Logger) (*Server, error) {
	if searcher == nil {
		return nil, ErrMissingSearcher
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		searcher:  searcher,
		indexPath: indexPath,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "doc-rag-assistant",
			Version: Version,
		}, nil),
		logger: logger,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        searcher.Name(),
		Description: searcher.Description(),
	}, s.handleSearch)

	if indexPath != "" {
		s.server.AddResource(&mcp.Resource{
			URI:         IndexResourceURI,
			Name:        "index",
			Description: "Descriptor of the persisted document index",
			MIMEType:    "application/json",
		}, s.handleIndexResource)
	}
	return s, nil
}

// Run 通过标准输入输出提供服务，直到上下文取消
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.searcher.Search(ctx, input.Query)
	if err != nil {
		s.logger.WithError(err).Warn("MCP search failed")
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]ResultOutput, len(results)),
		Count:   len(results),
	}
	for i, r := range results {
		source, _ := r.Metadata[document.MetaSource].(string)
		output.Results[i] = ResultOutput{
			Text:     r.Text,
			Source:   source,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
	}
	return nil, output, nil
}

func (s *Server) handleIndexResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	desc, err := index.ReadDescriptor(s.indexPath)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
