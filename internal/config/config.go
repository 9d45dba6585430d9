package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverQdrant   = "qdrant"
	DriverPgvector = "pgvector"
)

// Config holds the finrag service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Store      StoreConfig      `yaml:"store"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	RAG        RAGConfig        `yaml:"rag"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// APIKey maps a bearer token to the namespace its owner reads and writes.
type APIKey struct {
	Key       string `yaml:"key"`
	Namespace string `yaml:"namespace"`
}

// AuthConfig holds API authentication settings.
// With no keys configured the namespace is taken from the X-Namespace header.
type AuthConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // 0 disables it, streaming answers can be long
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig selects and connects the vector store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"` // redis, valkey, qdrant, pgvector (default: redis)
	Redis    RedisConfig    `yaml:"redis"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pgvector PgvectorConfig `yaml:"pgvector"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// PgvectorConfig holds Postgres connection settings.
type PgvectorConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// IndexConfig describes the vector index created on first use.
type IndexConfig struct {
	Name                 string `yaml:"name"`
	Dimension            int    `yaml:"dimension"`
	Metric               string `yaml:"metric"`
	Cloud                string `yaml:"cloud"`
	Region               string `yaml:"region"`
	HNSWM                int    `yaml:"hnsw_m"`
	HNSWEFConstruct      int    `yaml:"hnsw_ef_construction"`
	ReadinessPolls       int    `yaml:"readiness_polls"`
	ReadinessIntervalSec int    `yaml:"readiness_interval_sec"`
	UpsertBatchSize      int    `yaml:"upsert_batch_size"`
}

// ReadinessInterval returns the pause between readiness polls.
func (c IndexConfig) ReadinessInterval() time.Duration {
	return time.Duration(c.ReadinessIntervalSec) * time.Second
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	BatchSize           int          `yaml:"batch_size"`
	BatchPauseMs        *int         `yaml:"batch_pause_ms"` // 0 disables pacing (default: 1000)
	CacheTTLSec         int          `yaml:"cache_ttl_sec"`  // 0 disables the query cache
	Budget              BudgetConfig `yaml:"budget"`
}

// BatchPause returns the pause between embedding batches. Zero means no pacing.
func (c EmbeddingConfig) BatchPause() time.Duration {
	if c.BatchPauseMs == nil {
		return 0
	}
	return time.Duration(*c.BatchPauseMs) * time.Millisecond
}

// GenerationConfig holds generative model settings.
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Default role instructions for gemini-embedding-001.
const (
	DefaultDocumentInstruction = "title: none | text: "
	DefaultQueryInstruction    = "task: question answering | query: "
)

// RAGConfig holds chunking and retrieval settings.
type RAGConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap *int `yaml:"chunk_overlap"` // 0 disables overlap (default: 100)
	TopK         int  `yaml:"top_k"`
	HistoryTurns int  `yaml:"history_turns"`
	MaxUploadMB  int  `yaml:"max_upload_mb"`
}

// Overlap returns the number of characters shared by adjacent chunks.
func (c RAGConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return 0
	}
	return *c.ChunkOverlap
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec < 0 {
		c.HTTP.WriteTimeoutSec = 0
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverRedis
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = "finrag:"
	}
	if c.Store.Redis.ReadinessTimeout <= 0 {
		c.Store.Redis.ReadinessTimeout = 10
	}
	if c.Store.Qdrant.Port <= 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Store.Pgvector.Table == "" {
		c.Store.Pgvector.Table = "finrag_chunks"
	}

	if c.Index.Name == "" {
		c.Index.Name = "kodbank-fundamental"
	}
	if c.Index.Dimension <= 0 {
		c.Index.Dimension = 3072
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "cosine"
	}
	if c.Index.Cloud == "" {
		c.Index.Cloud = "aws"
	}
	if c.Index.Region == "" {
		c.Index.Region = "us-east-1"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.ReadinessPolls <= 0 {
		c.Index.ReadinessPolls = 20
	}
	if c.Index.ReadinessIntervalSec <= 0 {
		c.Index.ReadinessIntervalSec = 2
	}
	if c.Index.UpsertBatchSize <= 0 {
		c.Index.UpsertBatchSize = 50
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "gemini"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "gemini-embedding-001"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = c.Index.Dimension
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.BatchPauseMs == nil {
		c.Embedding.BatchPauseMs = intPtr(1000)
	}
	// Документы и запросы обязаны эмбеддиться с разными инструкциями.
	if c.Embedding.DocumentInstruction == "" && c.Embedding.QueryInstruction == "" {
		c.Embedding.DocumentInstruction = DefaultDocumentInstruction
		c.Embedding.QueryInstruction = DefaultQueryInstruction
	}

	if c.Generation.Model == "" {
		c.Generation.Model = "gemini-1.5-flash"
	}
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = c.Embedding.BaseURL
	}

	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 500
	}
	if c.RAG.ChunkOverlap == nil {
		c.RAG.ChunkOverlap = intPtr(100)
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.HistoryTurns <= 0 {
		c.RAG.HistoryTurns = 6
	}
	if c.RAG.MaxUploadMB <= 0 {
		c.RAG.MaxUploadMB = 32
	}
}

// Validate checks the configuration for correctness.
// Credentials are not required here; components report them missing as configuration errors.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Store.Driver {
	case DriverRedis, DriverValkey, DriverQdrant, DriverPgvector:
	default:
		return fmt.Errorf("store.driver must be one of redis, valkey, qdrant, pgvector, got %q", c.Store.Driver)
	}

	if c.Index.Metric != "cosine" {
		return fmt.Errorf("index.metric must be \"cosine\", got %q", c.Index.Metric)
	}
	if c.Embedding.Dimensions != c.Index.Dimension {
		return fmt.Errorf("embedding.dimensions (%d) must equal index.dimension (%d)",
			c.Embedding.Dimensions, c.Index.Dimension)
	}

	if c.Embedding.BatchPause() < 0 {
		return fmt.Errorf("embedding.batch_pause_ms must not be negative, got %d", *c.Embedding.BatchPauseMs)
	}
	if c.Embedding.DocumentInstruction == c.Embedding.QueryInstruction {
		return fmt.Errorf("embedding.document_instruction and embedding.query_instruction must differ, both are %q",
			c.Embedding.DocumentInstruction)
	}

	if overlap := c.RAG.Overlap(); overlap < 0 || overlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be in [0, rag.chunk_size (%d))",
			overlap, c.RAG.ChunkSize)
	}

	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}

	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" || k.Namespace == "" {
			return fmt.Errorf("auth.api_keys[%d]: key and namespace are required", i)
		}
		if seen[k.Key] {
			return fmt.Errorf("auth.api_keys[%d]: duplicate key", i)
		}
		seen[k.Key] = true
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

func intPtr(v int) *int { return &v }
