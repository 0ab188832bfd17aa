// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Session       SessionConfig       `mapstructure:"session"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	IngestTopic string `mapstructure:"ingest_topic"`
	EventTopic  string `mapstructure:"event_topic"`
	GroupID     string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// LLMConfig 存储大语言模型相关的配置，主备两个服务端点。
type LLMConfig struct {
	Primary    LLMProviderConfig   `mapstructure:"primary"`
	Fallback   LLMProviderConfig   `mapstructure:"fallback"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMProviderConfig 描述一个 OpenAI 兼容的文本生成服务端点。
type LLMProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ChunkingConfig 存储文本分块的默认参数。
type ChunkingConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Overlap   int `mapstructure:"overlap"`
}

// CacheConfig 存储响应缓存的调优参数。
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// MaxEntries 是响应缓存的容量上限，达到后按 last_used 淘汰最旧的 10%。
	MaxEntries int `mapstructure:"max_entries"`
	// SemanticThreshold 是语义命中所需的最小余弦相似度。
	SemanticThreshold float64 `mapstructure:"semantic_threshold"`
	// SemanticScanWindow 是语义查找只扫描的最近条目数。
	// 窗口外更相似的旧条目会被错过，这是有意的 LRU 偏向取舍。
	SemanticScanWindow int           `mapstructure:"semantic_scan_window"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
}

// SessionConfig 存储会话记忆的边界参数。
type SessionConfig struct {
	MaxMachines     int `mapstructure:"max_machines"`
	MaxTopics       int `mapstructure:"max_topics"`
	MaxCategories   int `mapstructure:"max_categories"`
	MaxProvidedInfo int `mapstructure:"max_provided_info"`
}

// Load 从指定路径读取 YAML 文件并解析为 Config。
// 各组件通过构造函数显式接收配置片段，不使用全局配置变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 1000
	}
	if c.Chunking.Overlap < 0 {
		c.Chunking.Overlap = 0
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.SemanticThreshold <= 0 {
		c.Cache.SemanticThreshold = 0.95
	}
	if c.Cache.SemanticScanWindow <= 0 {
		c.Cache.SemanticScanWindow = 100
	}
	if c.Cache.CleanupInterval <= 0 {
		c.Cache.CleanupInterval = time.Hour
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 16
	}
	if c.Session.MaxMachines <= 0 {
		c.Session.MaxMachines = 10
	}
	if c.Session.MaxTopics <= 0 {
		c.Session.MaxTopics = 10
	}
	if c.Session.MaxCategories <= 0 {
		c.Session.MaxCategories = 5
	}
	if c.Session.MaxProvidedInfo <= 0 {
		c.Session.MaxProvidedInfo = 100
	}
}
