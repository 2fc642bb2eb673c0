package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	BrightData  BrightDataConfig  `mapstructure:"brightdata"`
	Scraping    ScrapingConfig    `mapstructure:"scraping"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Reviews     ReviewsConfig     `mapstructure:"reviews"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig controls the logrus logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// BrightDataConfig holds the scraping proxy credentials and zones
type BrightDataConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	SerpZone          string        `mapstructure:"serp_zone"`
	UnlockerZone      string        `mapstructure:"unlocker_zone"`
	ReviewDatasetID   string        `mapstructure:"review_dataset_id"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ScrapingConfig bounds discovery and extraction fan-out
type ScrapingConfig struct {
	MaxRetries            int           `mapstructure:"max_retries"`
	RetryDelay            time.Duration `mapstructure:"retry_delay"`
	MaxProductsPerStore   int           `mapstructure:"max_products_per_store"`
	ExtractConcurrency    int           `mapstructure:"extract_concurrency"`
	ExtractTimeout        time.Duration `mapstructure:"extract_timeout"`
	PhaseTimeout          time.Duration `mapstructure:"phase_timeout"`
	SingleTimeout         time.Duration `mapstructure:"single_timeout"`
	DiscoveryStoreTimeout time.Duration `mapstructure:"discovery_store_timeout"`
	DiscoveryTimeout      time.Duration `mapstructure:"discovery_timeout"`
	EnrichTimeout         time.Duration `mapstructure:"enrich_timeout"`
	RegistrySize          int           `mapstructure:"registry_size"`
	MaxHistoryItems       int           `mapstructure:"max_history_items"`
}

// LLMConfig selects and configures the text generation provider
type LLMConfig struct {
	Provider           string        `mapstructure:"provider"` // "gemini" or "openai"
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	Model              string        `mapstructure:"model"`
	Timeout            time.Duration `mapstructure:"timeout"`
	EnrichChunkSize    int           `mapstructure:"enrich_chunk_size"`
	EnrichConcurrency  int           `mapstructure:"enrich_concurrency"`
	EnrichChunkTimeout time.Duration `mapstructure:"enrich_chunk_timeout"`
	MaxSpecChars       int           `mapstructure:"max_spec_chars"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // "openai" or "hash"
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// VectorStoreConfig configures the vector index backing the cache store
type VectorStoreConfig struct {
	Type                string        `mapstructure:"type"` // "memory" or "milvus"
	Address             string        `mapstructure:"address"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	DiscoveryIndex      string        `mapstructure:"discovery_index"`
	ReviewIndex         string        `mapstructure:"review_index"`
	TTL                 time.Duration `mapstructure:"ttl"`
	UpsertBatchSize     int           `mapstructure:"upsert_batch_size"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
}

// CacheConfig holds key/value cache configuration
type CacheConfig struct {
	Type        string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL    string        `mapstructure:"redis_url"`
	AnalysisTTL time.Duration `mapstructure:"analysis_ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP  int           `mapstructure:"per_ip"`
	Window time.Duration `mapstructure:"window"`
}

// ReviewsConfig bounds review extraction and storage
type ReviewsConfig struct {
	MaxPerStore        int           `mapstructure:"max_per_store"`
	StorageBatchSize   int           `mapstructure:"storage_batch_size"`
	WalmartMaxPages    int           `mapstructure:"walmart_max_pages"`
	WalmartConcurrency int           `mapstructure:"walmart_concurrency"`
	AmazonMaxWait      time.Duration `mapstructure:"amazon_max_wait"`
	CachedTopK         int           `mapstructure:"cached_top_k"`
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/opinionflow/")

	v.SetEnvPrefix("OPINIONFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
// Every key gets a default so AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8501"})
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("brightdata.api_key", "")
	v.SetDefault("brightdata.base_url", "https://api.brightdata.com")
	v.SetDefault("brightdata.serp_zone", "opinionflow_serp")
	v.SetDefault("brightdata.unlocker_zone", "opinionflow_unlocker")
	v.SetDefault("brightdata.review_dataset_id", "gd_le8e811kzy4ggddlq")
	v.SetDefault("brightdata.requests_per_second", 5.0)
	v.SetDefault("brightdata.burst", 10)
	v.SetDefault("brightdata.timeout", "60s")

	v.SetDefault("scraping.max_retries", 3)
	v.SetDefault("scraping.retry_delay", "1s")
	v.SetDefault("scraping.max_products_per_store", 3)
	v.SetDefault("scraping.extract_concurrency", 6)
	v.SetDefault("scraping.extract_timeout", "30s")
	v.SetDefault("scraping.phase_timeout", "45s")
	v.SetDefault("scraping.single_timeout", "30s")
	v.SetDefault("scraping.discovery_store_timeout", "20s")
	v.SetDefault("scraping.discovery_timeout", "40s")
	v.SetDefault("scraping.enrich_timeout", "120s")
	v.SetDefault("scraping.registry_size", 1000)
	v.SetDefault("scraping.max_history_items", 50)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.enrich_chunk_size", 5)
	v.SetDefault("llm.enrich_concurrency", 2)
	v.SetDefault("llm.enrich_chunk_timeout", "30s")
	v.SetDefault("llm.max_spec_chars", 1500)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://router.huggingface.co/hf-inference/models/sentence-transformers/all-MiniLM-L6-v2/pipeline/feature-extraction/v1")
	v.SetDefault("embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimension", 384)

	v.SetDefault("vectorstore.type", "memory")
	v.SetDefault("vectorstore.address", "")
	v.SetDefault("vectorstore.username", "")
	v.SetDefault("vectorstore.password", "")
	v.SetDefault("vectorstore.discovery_index", "opinionflow_discovery")
	v.SetDefault("vectorstore.review_index", "opinionflow_reviews")
	v.SetDefault("vectorstore.ttl", "168h") // 7 days
	v.SetDefault("vectorstore.upsert_batch_size", 100)
	v.SetDefault("vectorstore.similarity_threshold", 0.0)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.analysis_ttl", "1h")

	v.SetDefault("ratelimit.per_ip", 60)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("reviews.max_per_store", 100)
	v.SetDefault("reviews.storage_batch_size", 50)
	v.SetDefault("reviews.walmart_max_pages", 5)
	v.SetDefault("reviews.walmart_concurrency", 3)
	v.SetDefault("reviews.amazon_max_wait", "120s")
	v.SetDefault("reviews.cached_top_k", 1000)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.BrightData.APIKey == "" {
		return fmt.Errorf("Bright Data API key is required (set OPINIONFLOW_BRIGHTDATA_API_KEY)")
	}

	if config.LLM.Provider != "gemini" && config.LLM.Provider != "openai" {
		return fmt.Errorf("llm provider must be 'gemini' or 'openai', got: %s", config.LLM.Provider)
	}

	if config.Embedding.Provider != "openai" && config.Embedding.Provider != "hash" {
		return fmt.Errorf("embedding provider must be 'openai' or 'hash', got: %s", config.Embedding.Provider)
	}

	if config.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got: %d", config.Embedding.Dimension)
	}

	if config.VectorStore.Type != "memory" && config.VectorStore.Type != "milvus" {
		return fmt.Errorf("vector store type must be 'memory' or 'milvus', got: %s", config.VectorStore.Type)
	}

	if config.VectorStore.Type == "milvus" && config.VectorStore.Address == "" {
		return fmt.Errorf("Milvus address is required when vector store type is 'milvus'")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	return nil
}
