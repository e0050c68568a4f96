package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Article pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Poller   PollerConfig   `yaml:"poller"`
	Retry    RetryConfig    `yaml:"retry"`

	// External capabilities
	LLM       LLMConfig       `yaml:"llm"`
	Images    ImagesConfig    `yaml:"images"`
	Publisher PublisherConfig `yaml:"publisher"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	SSLMode      string        `yaml:"sslmode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxLifetime  time.Duration `yaml:"max_lifetime"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "pretty"
}

// PipelineConfig controls the article worker pool.
type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// DedupConfig controls duplicate detection.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	EmbeddingDim        int     `yaml:"embedding_dim"` // 0 accepts any dimensionality
	EmbedChars          int     `yaml:"embed_chars"`
}

// PollerConfig controls source polling.
type PollerConfig struct {
	TickSpec             string        `yaml:"tick_spec"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	SourceTimeout        time.Duration `yaml:"source_timeout"` // whole poll of one source, item loads included
	Concurrency          int           `yaml:"concurrency"`
	EvergreenMinInterval time.Duration `yaml:"evergreen_min_interval"`
	UserAgent            string        `yaml:"user_agent"`
}

// RetryConfig controls automatic retries of failed articles.
type RetryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TickSpec        string        `yaml:"tick_spec"`
	MaxAttempts     int           `yaml:"max_attempts"` // 0 means unlimited
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	EvergreenFactor int           `yaml:"evergreen_factor"`
	BatchSize       int           `yaml:"batch_size"`
}

// LLMConfig holds the OpenAI-compatible API settings used for rewriting and embeddings.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	FallbackModel  string        `yaml:"fallback_model"`
	EmbeddingURL   string        `yaml:"embedding_url"`
	EmbeddingKey   string        `yaml:"embedding_key"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	Referer        string        `yaml:"referer"`
}

// ImagesConfig holds image provider settings.
type ImagesConfig struct {
	Providers   []string      `yaml:"providers"`
	PexelsKey   string        `yaml:"pexels_key"`
	UnsplashKey string        `yaml:"unsplash_key"`
	FluxModel   string        `yaml:"flux_model"`
	FluxSize    string        `yaml:"flux_size"`
	MaxBytes    int64         `yaml:"max_bytes"`
	Timeout     time.Duration `yaml:"timeout"`
	VisionModel string        `yaml:"vision_model"` // screens original images; empty disables the check
}

// PublisherConfig holds destination publishing settings.
type PublisherConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) and
// environment variables. Environment variables win over the file.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			Password:     "postgres",
			Name:         "syndication",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			MaxLifetime:  5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: PipelineConfig{
			Workers:      defaultWorkers(),
			RunTimeout:   5 * time.Minute,
			PollInterval: 2 * time.Second,
			BatchSize:    50,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.80,
			TopK:                5,
			EmbedChars:          500,
		},
		Poller: PollerConfig{
			TickSpec:             "@every 1m",
			FetchTimeout:         30 * time.Second,
			SourceTimeout:        3 * time.Minute,
			Concurrency:          8,
			EvergreenMinInterval: 24 * time.Hour,
			UserAgent:            "Mozilla/5.0 (compatible; SyndicationBot/1.0)",
		},
		Retry: RetryConfig{
			Enabled:         true,
			TickSpec:        "@every 5m",
			MaxAttempts:     3,
			BaseDelay:       5 * time.Minute,
			MaxDelay:        6 * time.Hour,
			EvergreenFactor: 4,
			BatchSize:       50,
		},
		LLM: LLMConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "google/gemini-2.0-flash-exp:free",
			FallbackModel:  "meta-llama/llama-3.2-3b-instruct:free",
			EmbeddingURL:   "https://api.openai.com/v1",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        90 * time.Second,
			MaxRetries:     3,
		},
		Images: ImagesConfig{
			Providers: []string{"original", "bing", "pexels", "unsplash", "flux"},
			FluxModel: "black-forest-labs/flux-schnell",
			FluxSize:  "1024x576",
			MaxBytes:  10 * 1024 * 1024,
			Timeout:   30 * time.Second,
		},
		Publisher: PublisherConfig{
			Timeout: 60 * time.Second,
		},
	}
}

// LoadFile overlays values from a YAML file onto the configuration.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxLifetime = getDurationEnv("DB_MAX_LIFETIME", c.Database.MaxLifetime)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Pipeline.Workers = getIntEnv("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.RunTimeout = getDurationEnv("PIPELINE_RUN_TIMEOUT", c.Pipeline.RunTimeout)
	c.Pipeline.PollInterval = getDurationEnv("PIPELINE_POLL_INTERVAL", c.Pipeline.PollInterval)
	c.Pipeline.BatchSize = getIntEnv("PIPELINE_BATCH_SIZE", c.Pipeline.BatchSize)

	c.Dedup.SimilarityThreshold = getFloatEnv("SIMILARITY_THRESHOLD", c.Dedup.SimilarityThreshold)
	c.Dedup.TopK = getIntEnv("DEDUP_TOP_K", c.Dedup.TopK)
	c.Dedup.EmbeddingDim = getIntEnv("EMBEDDING_DIM", c.Dedup.EmbeddingDim)
	c.Dedup.EmbedChars = getIntEnv("DEDUP_EMBED_CHARS", c.Dedup.EmbedChars)

	c.Poller.TickSpec = getEnv("POLLER_TICK", c.Poller.TickSpec)
	c.Poller.FetchTimeout = getDurationEnv("POLLER_FETCH_TIMEOUT", c.Poller.FetchTimeout)
	c.Poller.SourceTimeout = getDurationEnv("POLLER_SOURCE_TIMEOUT", c.Poller.SourceTimeout)
	c.Poller.Concurrency = getIntEnv("POLLER_CONCURRENCY", c.Poller.Concurrency)
	c.Poller.EvergreenMinInterval = getDurationEnv("EVERGREEN_MIN_INTERVAL", c.Poller.EvergreenMinInterval)
	c.Poller.UserAgent = getEnv("POLLER_USER_AGENT", c.Poller.UserAgent)

	c.Retry.Enabled = getBoolEnv("RETRY_ENABLED", c.Retry.Enabled)
	c.Retry.TickSpec = getEnv("RETRY_TICK", c.Retry.TickSpec)
	c.Retry.MaxAttempts = getIntEnv("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.BaseDelay = getDurationEnv("RETRY_BASE_DELAY", c.Retry.BaseDelay)
	c.Retry.MaxDelay = getDurationEnv("RETRY_MAX_DELAY", c.Retry.MaxDelay)
	c.Retry.EvergreenFactor = getIntEnv("RETRY_EVERGREEN_FACTOR", c.Retry.EvergreenFactor)

	c.LLM.BaseURL = getEnv("OPENROUTER_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("OPENROUTER_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("AI_MODEL", c.LLM.Model)
	c.LLM.FallbackModel = getEnv("AI_FALLBACK_MODEL", c.LLM.FallbackModel)
	c.LLM.EmbeddingURL = getEnv("EMBEDDING_BASE_URL", c.LLM.EmbeddingURL)
	c.LLM.EmbeddingKey = getEnv("EMBEDDING_API_KEY", c.LLM.EmbeddingKey)
	c.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.Timeout = getDurationEnv("AI_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getIntEnv("AI_MAX_RETRIES", c.LLM.MaxRetries)
	c.LLM.Referer = getEnv("AI_REFERER", c.LLM.Referer)

	if v := os.Getenv("IMAGE_PROVIDERS"); v != "" {
		c.Images.Providers = splitList(v)
	}
	c.Images.PexelsKey = getEnv("PEXELS_API_KEY", c.Images.PexelsKey)
	c.Images.UnsplashKey = getEnv("UNSPLASH_ACCESS_KEY", c.Images.UnsplashKey)
	c.Images.FluxModel = getEnv("FLUX_MODEL", c.Images.FluxModel)
	c.Images.MaxBytes = getInt64Env("IMAGE_MAX_BYTES", c.Images.MaxBytes)
	c.Images.Timeout = getDurationEnv("IMAGE_TIMEOUT", c.Images.Timeout)
	c.Images.VisionModel = getEnv("IMAGE_VISION_MODEL", c.Images.VisionModel)

	c.Publisher.Timeout = getDurationEnv("PUBLISH_TIMEOUT", c.Publisher.Timeout)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("pipeline run timeout must be positive")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0, 1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Dedup.TopK <= 0 {
		return fmt.Errorf("dedup top_k must be positive")
	}
	if c.Dedup.EmbeddingDim < 0 {
		return fmt.Errorf("embedding dimension cannot be negative")
	}
	if c.Poller.Concurrency <= 0 {
		return fmt.Errorf("poller concurrency must be positive")
	}
	if c.Poller.FetchTimeout <= 0 {
		return fmt.Errorf("poller fetch timeout must be positive")
	}
	if c.Poller.SourceTimeout < c.Poller.FetchTimeout {
		return fmt.Errorf("poller source timeout must be at least the fetch timeout")
	}
	if c.Poller.TickSpec == "" {
		return fmt.Errorf("poller tick spec is required")
	}
	if c.Retry.Enabled && c.Retry.TickSpec == "" {
		return fmt.Errorf("retry tick spec is required when retries are enabled")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts cannot be negative")
	}
	for _, p := range c.Images.Providers {
		switch p {
		case "original", "bing", "pexels", "unsplash", "flux":
		default:
			return fmt.Errorf("unknown image provider %q", p)
		}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// defaultWorkers sizes the pool for I/O-bound work: NumCPU*4 clamped to [4, 32].
func defaultWorkers() int {
	n := runtime.NumCPU() * 4
	if n < 4 {
		n = 4
	}
	if n > 32 {
		n = 32
	}
	return n
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
