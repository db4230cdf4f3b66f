package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fyerfyer/doc-rag-assistant/config"
	"github.com/fyerfyer/doc-rag-assistant/internal/cache"
	"github.com/fyerfyer/doc-rag-assistant/internal/database"
	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/embedding"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/ingest"
	"github.com/fyerfyer/doc-rag-assistant/internal/llm"
	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
	"github.com/fyerfyer/doc-rag-assistant/internal/manifest"
	"github.com/fyerfyer/doc-rag-assistant/internal/repository"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
	"github.com/fyerfyer/doc-rag-assistant/internal/vectordb"
	"github.com/fyerfyer/doc-rag-assistant/pkg/storage"
	"github.com/fyerfyer/doc-rag-assistant/pkg/taskqueue"
)

// app 命令共享的依赖，按需创建
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *document.Registry

	db       *gorm.DB
	embedder embedding.Client
	q        *taskqueue.RedisQueue
	closers  []func() error
}

// newApp 加载配置并初始化日志
func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: document.NewDefaultRegistry(cfg.Ingest.TextFormats),
	}, nil
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Failed to release resource")
		}
	}
	a.closers = nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// database 打开数据库，未启用时返回nil
func (a *app) database() (*gorm.DB, error) {
	if a.db != nil || !a.cfg.Database.Enable {
		return a.db, nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Type = a.cfg.Database.Type
	if a.cfg.Database.DSN != "" {
		dbCfg.DSN = a.cfg.Database.DSN
	}

	db, err := database.Open(dbCfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.onClose(func() error { return database.Close(db) })
	return db, nil
}

// embeddingClient 创建嵌入客户端，整个进程共用一个
func (a *app) embeddingClient() (embedding.Client, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}

	c := a.cfg.Embed
	client, err := embedding.NewClient(c.Provider,
		embedding.WithAPIKey(c.APIKey),
		embedding.WithBaseURL(c.Endpoint),
		embedding.WithModel(c.Model),
		embedding.WithTimeout(c.Timeout),
		embedding.WithMaxRetries(c.MaxRetries),
		embedding.WithDimensions(c.Dimensions),
		embedding.WithBatchSize(c.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	a.embedder = client
	return client, nil
}

// queryEmbedder 检索使用的嵌入客户端，启用缓存时包装查询向量缓存
func (a *app) queryEmbedder() (embedding.Client, error) {
	client, err := a.embeddingClient()
	if err != nil {
		return nil, err
	}
	if !a.cfg.Cache.Enable {
		return client, nil
	}

	cc := cache.DefaultConfig()
	cc.Type = a.cfg.Cache.Type
	cc.RedisAddr = a.cfg.Cache.Address
	cc.RedisPassword = a.cfg.Cache.Password
	cc.RedisDB = a.cfg.Cache.DB
	ttl := time.Duration(a.cfg.Cache.TTL) * time.Second
	if ttl > 0 {
		cc.DefaultTTL = ttl
	}

	c, err := cache.NewCache(cc)
	if err != nil {
		// 缓存不可用不影响检索
		a.logger.WithError(err).Warn("Query cache disabled")
		return client, nil
	}
	a.onClose(c.Close)
	return embedding.NewCachedClient(client, c, cc.DefaultTTL, a.logger), nil
}

func (a *app) indexConfig() index.Config {
	return index.Config{
		Path:      a.cfg.VectorDB.Path,
		Backend:   a.cfg.VectorDB.Type,
		Distance:  vectordb.DistanceType(a.cfg.VectorDB.Distance),
		BatchSize: a.cfg.Embed.BatchSize,
	}
}

// manifestStore 按配置创建清单存储
func (a *app) manifestStore() (manifest.Store, error) {
	var db *gorm.DB
	if a.cfg.Manifest.Type == "sqlite" {
		var err error
		if db, err = a.database(); err != nil {
			return nil, err
		}
	}
	return manifest.New(a.cfg.Manifest.Type, a.cfg.Manifest.Path, db)
}

// runRepository 运行记录仓储，数据库未启用时返回nil
func (a *app) runRepository() (repository.RunRepository, error) {
	db, err := a.database()
	if err != nil || db == nil {
		return nil, err
	}
	return repository.NewRunRepository(db), nil
}

// snapshotter 快照归档，未启用时返回nil
func (a *app) snapshotter() (*storage.Snapshotter, error) {
	c := a.cfg.Snapshot
	if !c.Enable {
		return nil, nil
	}

	store, err := storage.New(storage.Config{
		Type:  c.Type,
		Local: storage.LocalConfig{Path: c.Path},
		Minio: storage.MinioConfig{
			Endpoint:  c.Endpoint,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			UseSSL:    c.UseSSL,
			Bucket:    c.Bucket,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot storage: %w", err)
	}
	return storage.NewSnapshotter(store, c.Prefix, c.Keep), nil
}

// orchestrator 创建导入编排器
func (a *app) orchestrator(trigger string) (*ingest.Orchestrator, error) {
	store, err := a.manifestStore()
	if err != nil {
		return nil, err
	}
	embedder, err := a.embeddingClient()
	if err != nil {
		return nil, err
	}

	splitter, err := document.NewTextSplitter(document.SplitterConfig{
		ChunkSize:    a.cfg.Document.ChunkSize,
		ChunkOverlap: a.cfg.Document.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	unsupported, err := ingest.ParseUnsupportedPolicy(a.cfg.Ingest.UnsupportedPolicy)
	if err != nil {
		return nil, err
	}
	failure, err := ingest.ParseFailurePolicy(a.cfg.Ingest.FailurePolicy)
	if err != nil {
		return nil, err
	}

	opts := []ingest.Option{
		ingest.WithLogger(a.logger),
		ingest.WithTrigger(trigger),
	}

	db, err := a.database()
	if err != nil {
		return nil, err
	}
	if db != nil {
		opts = append(opts,
			ingest.WithFailureRepository(repository.NewFailureRepository(db)),
			ingest.WithRunRepository(repository.NewRunRepository(db)),
		)
	}

	snap, err := a.snapshotter()
	if err != nil {
		return nil, err
	}
	if snap != nil {
		opts = append(opts, ingest.WithSnapshotter(snap))
	}

	return ingest.New(ingest.Config{
		SourceDir:         a.cfg.Source.Dir,
		Index:             a.indexConfig(),
		UnsupportedPolicy: unsupported,
		FailurePolicy:     failure,
		MaxFailures:       a.cfg.Ingest.MaxFailures,
		ReplaceStale:      a.cfg.Ingest.ReplaceStale,
	}, store, a.registry, splitter, embedder, opts...)
}

// retrievalTool 创建检索工具
func (a *app) retrievalTool() (*retrieval.Tool, error) {
	embedder, err := a.queryEmbedder()
	if err != nil {
		return nil, err
	}

	tool := retrieval.NewTool(a.indexConfig(), embedder,
		retrieval.WithK(a.cfg.Search.K),
		retrieval.WithMinScore(a.cfg.Search.MinScore),
		retrieval.WithLogger(a.logger),
	)
	a.onClose(tool.Close)
	return tool, nil
}

// agent 创建对话代理，检索工具是它唯一的工具
func (a *app) agent(tool *retrieval.Tool) (*llm.Agent, error) {
	c := a.cfg.LLM
	return llm.NewAgent(a.logger, []llm.Tool{tool},
		llm.WithAPIKey(c.APIKey),
		llm.WithBaseURL(c.Endpoint),
		llm.WithModel(c.Model),
		llm.WithTimeout(c.Timeout),
		llm.WithMaxTokens(c.MaxTokens),
		llm.WithTemperature(c.Temperature),
		llm.WithMaxSteps(c.MaxSteps),
	)
}

// queue 连接导入任务队列
func (a *app) queue() (*taskqueue.RedisQueue, error) {
	if a.q != nil {
		return a.q, nil
	}

	qc := taskqueue.DefaultConfig()
	qc.RedisAddr = a.cfg.Queue.RedisAddr
	qc.RedisPassword = a.cfg.Queue.RedisPassword
	qc.RedisDB = a.cfg.Queue.RedisDB
	qc.RetryLimit = a.cfg.Queue.RetryLimit
	if a.cfg.Queue.UniqueTTL > 0 {
		qc.UniqueTTL = a.cfg.Queue.UniqueTTL
	}

	q, err := taskqueue.NewRedisQueue(qc, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect task queue: %w", err)
	}
	a.q = q
	a.onClose(q.Close)
	return q, nil
}

// signalContext 收到SIGINT或SIGTERM时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// isCanceled 判断错误是否由退出信号引起
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
