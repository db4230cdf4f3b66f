// Package ingest 增量导入源目录中的文档
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/embedding"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
	"github.com/fyerfyer/doc-rag-assistant/internal/manifest"
	"github.com/fyerfyer/doc-rag-assistant/internal/models"
	"github.com/fyerfyer/doc-rag-assistant/internal/repository"
	"github.com/fyerfyer/doc-rag-assistant/pkg/storage"
)

// ErrSourceDirNotFound 源目录不存在
var ErrSourceDirNotFound = errors.New("source directory not found")

// Config 导入配置
type Config struct {
	SourceDir         string            // 源目录，不递归
	Index             index.Config      // 索引配置
	UnsupportedPolicy UnsupportedPolicy // 不支持格式的处理方式
	FailurePolicy     FailurePolicy     // 失败处理方式
	MaxFailures       int               // 同一版本失败多少次后隔离，0表示一直重试
	ReplaceStale      bool              // 重新导入时替换旧分块
}

// Orchestrator 导入流程编排器
// 同一实例上的运行互斥执行
type Orchestrator struct {
	mu          sync.Mutex
	cfg         Config
	manifest    manifest.Store
	registry    *document.Registry
	splitter    document.Splitter
	embedder    embedding.Client
	failures    repository.FailureRepository
	runs        repository.RunRepository
	snapshotter *storage.Snapshotter
	trigger     string
	logger      *logrus.Logger
}

// Option 编排器配置选项
type Option func(*Orchestrator)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFailureRepository 设置失败记录，用于隔离反复失败的文件
func WithFailureRepository(repo repository.FailureRepository) Option {
	return func(o *Orchestrator) {
		o.failures = repo
	}
}

// WithRunRepository 设置运行记录
func WithRunRepository(repo repository.RunRepository) Option {
	return func(o *Orchestrator) {
		o.runs = repo
	}
}

// WithSnapshotter 设置快照，索引更新后归档
func WithSnapshotter(s *storage.Snapshotter) Option {
	return func(o *Orchestrator) {
		o.snapshotter = s
	}
}

// WithTrigger 设置运行记录中的触发方式
func WithTrigger(trigger string) Option {
	return func(o *Orchestrator) {
		o.trigger = trigger
	}
}

// New 创建导入编排器
func New(
	cfg Config,
	store manifest.Store,
	registry *document.Registry,
	splitter document.Splitter,
	embedder embedding.Client,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg.SourceDir == "" {
		return nil, errors.New("source directory is required")
	}
	if cfg.Index.Path == "" {
		return nil, errors.New("index path is required")
	}
	if store == nil || registry == nil || splitter == nil || embedder == nil {
		return nil, errors.New("manifest store, registry, splitter and embedder are required")
	}
	if cfg.UnsupportedPolicy == "" {
		cfg.UnsupportedPolicy = SkipUnsupported
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = Abort
	}

	o := &Orchestrator{
		cfg:      cfg,
		manifest: store,
		registry: registry,
		splitter: splitter,
		embedder: embedder,
		trigger:  "cli",
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run 单次运行的可变状态
type run struct {
	report   *Report
	manifest manifest.Manifest
	store    *index.Store // 为nil表示索引为空
	dirty    bool
	log      *logrus.Entry
}

// Run 执行一次增量导入
// 中止时已完成文件的结果仍会持久化，失败的文件不写入清单
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	return o.RunAs(ctx, o.trigger)
}

// RunAs 以指定的触发方式执行一次增量导入，触发方式写入运行记录
func (o *Orchestrator) RunAs(ctx context.Context, trigger string) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := &run{
		report: &Report{
			RunID:     uuid.New().String(),
			StartedAt: time.Now(),
			Files:     []FileResult{},
		},
	}
	r.log = o.logger.WithField(logging.FieldRunID, r.report.RunID)

	record := o.startRecord(r.report, trigger)
	r.log.WithField("source_dir", o.cfg.SourceDir).Info("Starting ingestion")

	runErr := o.execute(ctx, r)

	if r.store != nil {
		if n, err := r.store.Count(); err == nil {
			r.report.TotalChunks = n
		}
		if err := r.store.Close(); err != nil {
			r.log.WithError(err).Warn("Failed to close vector index")
		}
	}

	r.report.FinishedAt = time.Now()
	o.finishRecord(record, r.report, runErr)

	if runErr != nil {
		r.log.WithError(runErr).Error("Ingestion stopped")
	}
	return r.report, runErr
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	m, err := o.manifest.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	r.manifest = m

	store, err := index.LoadOrNone(o.cfg.Index, o.embedder, index.WithLogger(o.logger))
	switch {
	case errors.Is(err, index.ErrIndexNotFound):
		r.log.Debug("No persisted index, starting empty")
	case err != nil:
		return fmt.Errorf("failed to load vector index: %w", err)
	default:
		r.store = store
	}

	entries, err := os.ReadDir(o.cfg.SourceDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceDirNotFound, o.cfg.SourceDir)
		}
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	loopErr := o.processEntries(ctx, r, entries)

	// 中止也要保存已完成的文件
	if err := o.commit(ctx, r, loopErr == nil); err != nil {
		if loopErr != nil {
			return fmt.Errorf("%w (also failed to persist completed work: %v)", loopErr, err)
		}
		return err
	}
	return loopErr
}

func (o *Orchestrator) processEntries(ctx context.Context, r *run, entries []os.DirEntry) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		log := r.log.WithField(logging.FieldFile, name)

		// 隐藏文件包括上传中的临时文件，不参与导入
		if strings.HasPrefix(name, ".") {
			log.Debug("Ignoring hidden file")
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// 读取目录后文件被删除
			log.WithError(err).Warn("Failed to stat file, skipping")
			continue
		}
		modTime := manifest.ModTime(info)

		if !r.manifest.NeedsProcessing(name, modTime) {
			log.Debugf("Skipping %s, already previously processed", name)
			r.report.add(FileResult{File: name, Outcome: OutcomeSkipped})
			continue
		}

		path := filepath.Join(o.cfg.SourceDir, name)
		loader, ok := o.registry.Lookup(path)
		if !ok {
			r.report.add(FileResult{File: name, Outcome: OutcomeUnsupported})
			if o.cfg.UnsupportedPolicy == ErrorOnUnsupported {
				return fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, name)
			}
			log.Debug("No loader for file, skipping")
			continue
		}

		if o.quarantined(ctx, name, modTime) {
			log.Warn("File quarantined after repeated failures, skipping until it changes")
			r.report.add(FileResult{File: name, Outcome: OutcomeQuarantined})
			continue
		}

		log.Infof("Processing: %s", name)
		n, err := o.processFile(ctx, r, path, loader)
		if err != nil {
			r.report.add(FileResult{File: name, Outcome: OutcomeFailed, Error: err.Error()})
			o.recordFailure(ctx, log, name, modTime, err)

			if o.cfg.FailurePolicy == Abort || ctx.Err() != nil {
				return fmt.Errorf("failed to ingest %s: %w", name, err)
			}
			log.WithError(err).Warn("Failed to ingest file, continuing")
			continue
		}

		r.manifest[name] = modTime
		r.dirty = true
		r.report.add(FileResult{File: name, Outcome: OutcomeProcessed, Chunks: n})
		o.clearFailure(ctx, log, name)

		log.WithField(logging.FieldChunks, n).Debug("File ingested")
	}
	return nil
}

// processFile 加载、分块、清理元数据并写入索引，返回分块数
func (o *Orchestrator) processFile(ctx context.Context, r *run, path string, loader document.Loader) (int, error) {
	docs, err := loader.Load(path)
	if err != nil {
		return 0, err
	}

	chunks := document.SanitizeChunks(o.splitter.SplitDocuments(docs))

	// 第一个产生分块的文件创建索引
	if r.store == nil {
		if len(chunks) == 0 {
			return 0, nil
		}
		store, err := index.Create(ctx, o.cfg.Index, chunks, o.embedder, index.WithLogger(o.logger))
		if err != nil {
			return 0, err
		}
		r.store = store
		r.report.IndexCreated = true
		return len(chunks), nil
	}

	if o.cfg.ReplaceStale {
		err = r.store.Replace(ctx, path, chunks)
	} else {
		err = r.store.Add(ctx, chunks)
	}
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// commit 有文件被处理时持久化索引和清单，否则报告没有变化
func (o *Orchestrator) commit(ctx context.Context, r *run, completed bool) error {
	if !r.dirty {
		if completed {
			r.report.NoChanges = true
			r.log.Info("No new changes detected.")
		}
		return nil
	}

	// 索引先于清单写入，清单中的文件一定已在索引中
	if r.store != nil {
		if err := r.store.Persist(); err != nil {
			return fmt.Errorf("failed to persist vector index: %w", err)
		}
	}
	if err := o.manifest.Save(ctx, r.manifest); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	total := 0
	if r.store != nil {
		total = r.store.Descriptor().ChunkCount
	}
	r.log.WithFields(logrus.Fields{
		"processed": r.report.Processed,
		"chunks":    r.report.Chunks,
	}).Infof("Database updated. Total chunks: %d", total)

	if o.snapshotter != nil && r.store != nil {
		info, err := o.snapshotter.Snapshot(ctx, o.cfg.Index.Path, r.report.RunID)
		if err != nil {
			// 快照失败不影响本次导入结果
			r.log.WithError(err).Warn("Failed to snapshot vector index")
		} else {
			r.report.Snapshot = info.Key
		}
	}
	return nil
}

func (o *Orchestrator) quarantined(ctx context.Context, name string, modTime float64) bool {
	if o.failures == nil || o.cfg.MaxFailures <= 0 {
		return false
	}
	count, err := o.failures.WithContext(ctx).FailureCount(name, modTime)
	if err != nil {
		o.logger.WithError(err).WithField(logging.FieldFile, name).Warn("Failed to read failure ledger")
		return false
	}
	return count >= o.cfg.MaxFailures
}

func (o *Orchestrator) recordFailure(ctx context.Context, log *logrus.Entry, name string, modTime float64, cause error) {
	if o.failures == nil {
		return
	}
	// 取消的运行不计入失败次数
	if ctx.Err() != nil {
		return
	}
	count, err := o.failures.WithContext(ctx).RecordFailure(name, modTime, cause.Error())
	if err != nil {
		log.WithError(err).Warn("Failed to record failure")
		return
	}
	if o.cfg.MaxFailures > 0 && count >= o.cfg.MaxFailures {
		log.WithField("failures", count).Warn("File will be quarantined until it changes")
	}
}

func (o *Orchestrator) clearFailure(ctx context.Context, log *logrus.Entry, name string) {
	if o.failures == nil {
		return
	}
	if err := o.failures.WithContext(ctx).Clear(name); err != nil {
		log.WithError(err).Warn("Failed to clear failure record")
	}
}

func (o *Orchestrator) startRecord(report *Report, trigger string) *models.IngestRun {
	if o.runs == nil {
		return nil
	}
	rec := &models.IngestRun{
		ID:          report.RunID,
		TriggeredBy: trigger,
		Status:      models.RunStatusRunning,
		StartedAt:   report.StartedAt,
	}
	if err := o.runs.Create(rec); err != nil {
		o.logger.WithError(err).Warn("Failed to record ingest run")
		return nil
	}
	return rec
}

func (o *Orchestrator) finishRecord(rec *models.IngestRun, report *Report, runErr error) {
	if rec == nil {
		return
	}

	finished := report.FinishedAt
	rec.FinishedAt = &finished
	rec.Processed = report.Processed
	rec.Skipped = report.Skipped
	rec.Unsupported = report.Unsupported
	rec.Failed = report.Failed
	rec.Quarantined = report.Quarantined
	rec.Chunks = report.Chunks

	switch {
	case runErr != nil:
		rec.Status = models.RunStatusFailed
		rec.Error = runErr.Error()
	case report.NoChanges:
		rec.Status = models.RunStatusNoChanges
	default:
		rec.Status = models.RunStatusSucceeded
	}

	if details, err := json.Marshal(report.Files); err == nil {
		rec.Details = datatypes.JSON(details)
	}

	if err := o.runs.Update(rec); err != nil {
		o.logger.WithError(err).Warn("Failed to update ingest run")
	}
}
