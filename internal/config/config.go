// Package config provides configuration management for the RAG system.
// It follows Uber Go Style Guide conventions for struct organization and error handling.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Common configuration errors
var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceConfig holds common configuration for external service clients.
// Fields are organized by logical grouping and include validation tags.
type ServiceConfig struct {
	// Connection settings
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" validate:"required"`

	// Service settings
	Model string `mapstructure:"model" validate:"required"`
}

// ChunkingConfig defines text chunking parameters.
// Fields are organized by feature with validation tags.
type ChunkingConfig struct {
	// Size constraints (required)
	MaxChunkSize int `mapstructure:"max_chunk_size" validate:"required,min=100,max=10000"`
	MinChunkSize int `mapstructure:"min_chunk_size" validate:"required,min=50"`
	OverlapSize  int `mapstructure:"overlap_size" validate:"min=0"`

	// Semantic processing (optional)
	EnableSemantic      bool    `mapstructure:"enable_semantic"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"min=0.0,max=1.0"`
}

// Validate checks the chunking configuration and sets defaults.
func (c *ChunkingConfig) Validate() error {
	// Set defaults for zero values
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = 2000
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = 200
	}
	if c.OverlapSize == 0 {
		c.OverlapSize = 200
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.75
	}

	// Validation rules
	if c.MinChunkSize >= c.MaxChunkSize {
		return fmt.Errorf("%w: min chunk size must be less than max chunk size", ErrInvalidConfig)
	}
	if c.OverlapSize >= c.MaxChunkSize {
		return fmt.Errorf("%w: overlap size must be less than max chunk size", ErrInvalidConfig)
	}

	return nil
}

// Config represents the complete application configuration.
// Structs are organized by functional domain with clear separation.
type Config struct {
	// Server configuration
	Server struct {
		Host string `mapstructure:"host" validate:"required"`
		Port string `mapstructure:"port" validate:"required,numeric"`
	} `mapstructure:"server"`

	// Database configuration
	Database struct {
		Host     string `mapstructure:"host" validate:"required,hostname"`
		Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
		User     string `mapstructure:"user" validate:"required"`
		Password string `mapstructure:"password" validate:"required"`
		DBName   string `mapstructure:"dbname" validate:"required"`
	} `mapstructure:"database"`

	// Cache configuration
	Redis struct {
		Host     string `mapstructure:"host" validate:"required,hostname"`
		Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db" validate:"min=0,max=15"`
	} `mapstructure:"redis"`

	// Object storage configuration
	MinIO struct {
		Endpoint        string `mapstructure:"endpoint" validate:"required,url"`
		AccessKeyID     string `mapstructure:"access_key_id" validate:"required"`
		SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
		BucketName      string `mapstructure:"bucket_name" validate:"required"`
		UseSSL          bool   `mapstructure:"use_ssl"`
	} `mapstructure:"minio"`

	// Processing configuration
	Chunking ChunkingConfig `mapstructure:"chunking"`

	// External services configuration
	Services struct {
		Doc2X     ServiceConfig `mapstructure:"doc2x"`
		Embedding struct {
			ServiceConfig `mapstructure:",squash"`
		} `mapstructure:"embedding"`
		Reranker ServiceConfig `mapstructure:"reranker"`
		LLM      ServiceConfig `mapstructure:"llm"`
	} `mapstructure:"services"`

	// Vector DB configuration (spec.md 4.E): two collections, light and
	// dense, sharing one Qdrant DSN.
	VectorIndex struct {
		DSN             string `mapstructure:"dsn"`
		LightCollection string `mapstructure:"light_collection"`
		DenseCollection string `mapstructure:"dense_collection"`
	} `mapstructure:"vector_index"`

	// Three-level retriever tunables (spec.md 4.K).
	Retrieval struct {
		L1TopK        int     `mapstructure:"l1_top_k"`
		L2TopK        int     `mapstructure:"l2_top_k"`
		RSFK          int     `mapstructure:"rsf_k"`
		RSFS          float64 `mapstructure:"rsf_s"`
		DiffThreshold float64 `mapstructure:"diff_threshold"`
		DefaultTopK   int     `mapstructure:"default_top_k"`
	} `mapstructure:"retrieval"`

	// Multi-tier cache tunables (spec.md 4.L).
	Cache struct {
		ExactTTLSeconds    int     `mapstructure:"exact_ttl_seconds"`
		SemanticTTLSeconds int     `mapstructure:"semantic_ttl_seconds"`
		SessionTTLSeconds  int     `mapstructure:"session_ttl_seconds"`
		SemanticThreshold  float64 `mapstructure:"semantic_threshold"`
	} `mapstructure:"cache"`

	// Chat orchestrator tunables (spec.md §6-7).
	Chat struct {
		TokenBudgetTotal int    `mapstructure:"token_budget_total"`
		GenerationModel  string `mapstructure:"generation_model"`
		SystemPrompt     string `mapstructure:"system_prompt"`
	} `mapstructure:"chat"`

	// Summarization trigger tunables (spec.md 4.M).
	Summarize struct {
		BudgetThreshold int    `mapstructure:"budget_threshold"`
		Model           string `mapstructure:"model"`
	} `mapstructure:"summarize"`

	// Message-bus configuration (spec.md 4.G, 4.M): ingestion and
	// summarization both consume/produce through the same broker set.
	Bus struct {
		Brokers         []string `mapstructure:"brokers"`
		IngestTopic     string   `mapstructure:"ingest_topic"`
		SummarizeTopic  string   `mapstructure:"summarize_topic"`
		DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
		GroupID         string   `mapstructure:"group_id"`
		WorkerCount     int      `mapstructure:"worker_count"`
		MaxAttempts     int      `mapstructure:"max_attempts"`
	} `mapstructure:"bus"`
}

// Validate performs configuration validation and sets defaults.
func (c *Config) Validate() error {
	// Validate chunking configuration
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking config: %w", err)
	}

	// Additional validation logic can be added here
	// such as checking database connectivity, service availability, etc.

	return nil
}

// LoadConfig loads configuration from file and environment variables.
// It follows Uber Go Style Guide error handling patterns.
func LoadConfig(configPath string) (*Config, error) {
	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	// Every setting is overridable by an env var prefixed RAG_, with
	// nested keys joined by underscore (e.g. RAG_RETRIEVAL_L1_TOP_K),
	// per spec.md §6's Configuration section.
	viper.SetEnvPrefix("RAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set intelligent defaults
	setDefaults()

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Unmarshal into struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures sensible default values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	// Chunking defaults
	viper.SetDefault("chunking.max_chunk_size", 512)
	viper.SetDefault("chunking.min_chunk_size", 100)
	viper.SetDefault("chunking.overlap_size", 50)
	viper.SetDefault("chunking.sentence_boundary", true)
	viper.SetDefault("chunking.paragraph_boundary", true)
	viper.SetDefault("chunking.adaptive_size", true)
	viper.SetDefault("chunking.size_multiplier", 1.5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	// MinIO defaults
	viper.SetDefault("minio.use_ssl", false)

	// Vector index defaults
	viper.SetDefault("vector_index.dsn", "http://localhost:6334")
	viper.SetDefault("vector_index.light_collection", "chunks_light")
	viper.SetDefault("vector_index.dense_collection", "chunks_dense")

	// Retrieval defaults (spec.md 4.K)
	viper.SetDefault("retrieval.l1_top_k", 1500)
	viper.SetDefault("retrieval.l2_top_k", 80)
	viper.SetDefault("retrieval.rsf_k", 8)
	viper.SetDefault("retrieval.rsf_s", 1.0)
	viper.SetDefault("retrieval.diff_threshold", 0.8)
	viper.SetDefault("retrieval.default_top_k", 5)

	// Cache defaults (spec.md 4.L)
	viper.SetDefault("cache.exact_ttl_seconds", 24*60*60)
	viper.SetDefault("cache.semantic_ttl_seconds", 24*60*60)
	viper.SetDefault("cache.session_ttl_seconds", 2*60*60)
	viper.SetDefault("cache.semantic_threshold", 0.92)

	// Chat defaults
	viper.SetDefault("chat.token_budget_total", 8000)
	viper.SetDefault("chat.generation_model", "qwen3-32b")
	viper.SetDefault("chat.system_prompt", "")

	// Summarize defaults (spec.md 4.M)
	viper.SetDefault("summarize.budget_threshold", 4000)
	viper.SetDefault("summarize.model", "qwen3-4b")

	// Bus defaults (spec.md 4.G, 4.M)
	viper.SetDefault("bus.brokers", []string{"localhost:9092"})
	viper.SetDefault("bus.ingest_topic", "rag.ingest")
	viper.SetDefault("bus.summarize_topic", "rag.summarize")
	viper.SetDefault("bus.dead_letter_topic", "rag.dead_letter")
	viper.SetDefault("bus.group_id", "rag-workers")
	viper.SetDefault("bus.worker_count", 4)
	viper.SetDefault("bus.max_attempts", 3)
}

// MustLoadConfig loads configuration and panics on failure.
// Use this only in main() or init() functions where failure should be fatal.
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return config
}
