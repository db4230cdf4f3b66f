package main

import (
	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-rag-assistant/internal/ingest"
	"github.com/fyerfyer/doc-rag-assistant/pkg/taskqueue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued ingestion tasks",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(ingest.TriggerQueue)
	if err != nil {
		return err
	}
	worker, err := startWorker(a, orch)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	<-ctx.Done()
	a.logger.Info("Shutting down worker...")
	worker.Stop()
	return nil
}

// startWorker 连接队列并注册导入任务处理器，返回已启动的工作者
func startWorker(a *app, orch *ingest.Orchestrator) (taskqueue.Worker, error) {
	queue, err := a.queue()
	if err != nil {
		return nil, err
	}

	worker := taskqueue.NewRedisWorker(queue)
	worker.RegisterHandler(taskqueue.TaskIngest, orch)
	if err := worker.Start(); err != nil {
		return nil, err
	}
	a.logger.WithField("redis_addr", a.cfg.Queue.RedisAddr).Info("Ingest worker started")
	return worker, nil
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
