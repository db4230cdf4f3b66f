package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-rag-assistant/api"
	"github.com/fyerfyer/doc-rag-assistant/api/handler"
	"github.com/fyerfyer/doc-rag-assistant/pkg/taskqueue"
)

var flagServeWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(a.cfg.Server.Mode)

	tool, err := a.retrievalTool()
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(handler.TriggerAPI)
	if err != nil {
		return err
	}
	store, err := a.manifestStore()
	if err != nil {
		return err
	}

	h := api.Handlers{
		Cors:     a.cfg.Server.Cors,
		Search:   handler.NewSearchHandler(tool, a.logger),
		Document: handler.NewDocumentHandler(a.cfg.Source.Dir, a.registry, store, tool, a.logger),
	}

	runs, err := a.runRepository()
	if err != nil {
		return err
	}
	if runs != nil {
		h.Run = handler.NewRunHandler(runs)
	}

	// 未启用队列时只支持同步导入
	var queue taskqueue.Queue
	var worker taskqueue.Worker
	if a.cfg.Queue.Enable {
		q, err := a.queue()
		if err != nil {
			return err
		}
		queue = q
		if flagServeWorker {
			if worker, err = startWorker(a, orch); err != nil {
				return err
			}
		}
	}
	h.Ingest = handler.NewIngestHandler(orch, queue, a.cfg.Source.Dir, a.logger)

	// 没有可用的对话模型时不注册 /api/chat
	agent, err := a.agent(tool)
	if err != nil {
		a.logger.WithError(err).Warn("Chat endpoint disabled")
	} else {
		h.Chat = handler.NewChatHandler(agent, a.logger)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      api.SetupRouter(a.logger, h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // 同步导入可能耗时较长
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signalContext()
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	a.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("Server forced to shutdown")
	}
	if worker != nil {
		worker.Stop()
	}

	a.logger.Info("Server exited")
	return nil
}

func init() {
	serveCmd.Flags().BoolVar(&flagServeWorker, "worker", false, "also process queued ingestion tasks in this process")
	rootCmd.AddCommand(serveCmd)
}
