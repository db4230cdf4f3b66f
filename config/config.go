package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Document DocumentConfig `mapstructure:"document"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	Cors bool   `mapstructure:"cors"`                                     // 是否允许跨域请求
}

// SourceConfig 源文档目录配置
type SourceConfig struct {
	Dir string `mapstructure:"dir" validate:"required"` // 待导入文档所在目录（不递归）
}

// ManifestConfig 导入清单配置
type ManifestConfig struct {
	Type string `mapstructure:"type" validate:"oneof=json sqlite"` // json文件或sqlite表
	Path string `mapstructure:"path" validate:"required"`          // json清单文件路径
}

// VectorDBConfig 向量索引配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=faiss memory"`      // 索引后端
	Path     string `mapstructure:"path" validate:"required"`                // 持久化目录，维度由嵌入模型决定
	Distance string `mapstructure:"distance" validate:"oneof=cosine l2 dot"` // 距离度量方式
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"required"`
	Model      string        `mapstructure:"model" validate:"required"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1"`
	Dimensions int           `mapstructure:"dimensions" validate:"min=0"` // 0表示使用模型默认维度
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0"`
}

// LLMConfig 对话模型配置
type LLMConfig struct {
	Model       string        `mapstructure:"model" validate:"required"`
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"min=0"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxSteps    int           `mapstructure:"max_steps" validate:"min=1"` // 单轮对话中最多的工具调用轮数
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DocumentConfig 文档分块配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" validate:"min=1"`
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`
}

// IngestConfig 导入流程策略
type IngestConfig struct {
	UnsupportedPolicy string `mapstructure:"unsupported_policy" validate:"oneof=skip-unsupported error-on-unsupported"`
	FailurePolicy     string `mapstructure:"failure_policy" validate:"oneof=abort continue"`
	MaxFailures       int    `mapstructure:"max_failures" validate:"min=0"` // 同一版本文件失败多少次后隔离，0表示一直重试
	ReplaceStale      bool   `mapstructure:"replace_stale"`                 // 重新导入修改过的文件时删除旧分块
	TextFormats       bool   `mapstructure:"text_formats"`                  // 是否额外导入 .md/.txt
}

// SearchConfig 检索配置
type SearchConfig struct {
	K        int     `mapstructure:"k" validate:"min=1"`
	MinScore float32 `mapstructure:"min_score"`
}

// CacheConfig 查询向量缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type" validate:"oneof=memory redis"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // 秒
}

// DatabaseConfig 数据库配置（失败记录、运行历史、sqlite清单）
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"`
	Type   string `mapstructure:"type" validate:"oneof=sqlite"`
	DSN    string `mapstructure:"dsn"`
}

// SnapshotConfig 索引快照归档配置
type SnapshotConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Type      string `mapstructure:"type" validate:"oneof=local minio"`
	Path      string `mapstructure:"path"`
	Prefix    string `mapstructure:"prefix"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Keep      int    `mapstructure:"keep" validate:"min=0"` // 保留的快照个数，0表示全部保留
}

// QueueConfig 导入任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"` // serve命令是否支持异步导入
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RetryLimit    int           `mapstructure:"retry_limit" validate:"min=0"`
	UniqueTTL     time.Duration `mapstructure:"unique_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`        // 为空时只输出到标准错误
	MaxSize    int    `mapstructure:"max_size"`    // MB
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件个数
	MaxAge     int    `mapstructure:"max_age"`     // 天
	Compress   bool   `mapstructure:"compress"`
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 支持环境变量覆盖，例如 VECTORDB_PATH
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandSecrets(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	expandSecrets(&cfg)
	return &cfg
}

// WriteDefault 将默认配置写入指定路径
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate 校验配置取值
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// expandSecrets 处理 ${VAR} 形式的密钥配置
func expandSecrets(cfg *Config) {
	cfg.Embed.APIKey = expandEnv(cfg.Embed.APIKey)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Snapshot.AccessKey = expandEnv(cfg.Snapshot.AccessKey)
	cfg.Snapshot.SecretKey = expandEnv(cfg.Snapshot.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.Queue.RedisPassword = expandEnv(cfg.Queue.RedisPassword)

	// 未单独配置时对话模型复用嵌入模型的密钥
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = cfg.Embed.APIKey
	}
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors", false)

	v.SetDefault("source.dir", "./data")

	v.SetDefault("manifest.type", "json")
	v.SetDefault("manifest.path", "processed_files.json")

	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./db")
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("embed.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 3)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_steps", 4)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 100)

	v.SetDefault("ingest.unsupported_policy", "skip-unsupported")
	v.SetDefault("ingest.failure_policy", "abort")
	v.SetDefault("ingest.max_failures", 3)
	v.SetDefault("ingest.replace_stale", true)
	v.SetDefault("ingest.text_formats", false)

	v.SetDefault("search.k", 4)
	v.SetDefault("search.min_score", 0)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 3600)

	v.SetDefault("database.enable", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data.db")

	v.SetDefault("snapshot.enable", false)
	v.SetDefault("snapshot.type", "local")
	v.SetDefault("snapshot.path", "./snapshots")
	v.SetDefault("snapshot.prefix", "index")
	v.SetDefault("snapshot.bucket", "doc-rag")
	v.SetDefault("snapshot.use_ssl", false)
	v.SetDefault("snapshot.keep", 5)

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.retry_limit", 0)
	v.SetDefault("queue.unique_ttl", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}
