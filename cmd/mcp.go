package main

import (
	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-rag-assistant/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document search tool over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

// runMCP 标准输出归协议使用，日志只写标准错误
func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tool, err := a.retrievalTool()
	if err != nil {
		return err
	}

	server, err := mcpserver.NewServer(tool, a.cfg.VectorDB.Path, a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a.logger.Info("MCP server listening on stdio")
	if err := server.Run(ctx); err != nil && !isCanceled(err) {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
