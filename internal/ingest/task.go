package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyerfyer/doc-rag-assistant/pkg/taskqueue"
)

// TriggerQueue 队列任务的默认触发方式
const TriggerQueue = "queue"

// ErrSourceDirMismatch 任务指定的源目录与编排器配置不同
var ErrSourceDirMismatch = errors.New("task source directory does not match configured source directory")

// ProcessTask 将导入作为队列任务执行，返回的报告保存为任务结果
// 载荷中的源目录为空时使用配置的目录，不同时任务失败
func (o *Orchestrator) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.IngestPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid ingest payload: %w", err)
	}

	if payload.SourceDir != "" && !sameDir(payload.SourceDir, o.cfg.SourceDir) {
		return nil, fmt.Errorf("%w: task wants %s, worker ingests %s", ErrSourceDirMismatch, payload.SourceDir, o.cfg.SourceDir)
	}

	trigger := payload.Trigger
	if trigger == "" {
		trigger = TriggerQueue
	}

	return o.RunAs(ctx, trigger)
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
