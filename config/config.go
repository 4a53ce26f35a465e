package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Cache     CacheConfig     `yaml:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig holds document store configuration.
type StoreConfig struct {
	Driver         string `yaml:"driver"` // "bolt" or "memory"
	Path           string `yaml:"path"`   // empty means <dir>/.rag/index.db
	WriteBatchSize int    `yaml:"write_batch_size"`
}

// IndexConfig holds indexing configuration.
type IndexConfig struct {
	Includes           []string      `yaml:"includes"`
	Excludes           []string      `yaml:"excludes"`
	ChunkSize          int           `yaml:"chunk_size"`
	ChunkOverlap       int           `yaml:"chunk_overlap"`
	InterDocumentDelay time.Duration `yaml:"inter_document_delay"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`    // "openai", "ollama", "jina", "deepseek", "mock"
	Model             string        `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv         string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string        `yaml:"base_url"`
	Dimension         int           `yaml:"dimension"` // 0 = the model's default
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	Timeout           time.Duration `yaml:"timeout"`
	QueryCacheSize    int           `yaml:"query_cache_size"`
}

// RetrieveConfig holds query configuration.
type RetrieveConfig struct {
	TopK            int     `yaml:"top_k"`
	Threshold       float64 `yaml:"threshold"`
	Parallelism     int     `yaml:"parallelism"`
	MaxContextChars int     `yaml:"max_context_chars"` // 0 = no limit on contexts_text
}

// RerankConfig holds the optional re-ranking stage configuration.
type RerankConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Provider         string        `yaml:"provider"` // "llm" or "overlap"
	Model            string        `yaml:"model"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	BaseURL          string        `yaml:"base_url"`
	Candidates       int           `yaml:"candidates"`
	TopN             int           `yaml:"top_n"`
	SimilarityWeight float64       `yaml:"similarity_weight"`
	OracleWeight     float64       `yaml:"oracle_weight"`
	MinOracleScore   int           `yaml:"min_oracle_score"` // candidates scoring <= this are dropped
	Timeout          time.Duration `yaml:"timeout"`
}

// CacheConfig holds metadata cache configuration.
type CacheConfig struct {
	MetadataTTL time.Duration `yaml:"metadata_ttl"`
}

// MetricsConfig holds access metrics configuration.
type MetricsConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxUpdates int           `yaml:"max_updates"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:         "bolt",
			WriteBatchSize: 500,
		},
		Index: IndexConfig{
			Includes:           []string{"**/*.txt", "**/*.md", "**/*.csv", "**/*.docx"},
			Excludes:           []string{"**/.git/**", "**/.rag/**", "**/node_modules/**", "**/~$*"},
			ChunkSize:          800,
			ChunkOverlap:       150,
			InterDocumentDelay: 500 * time.Millisecond,
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai",
			Model:          "text-embedding-3-small",
			APIKeyEnv:      "OPENAI_API_KEY",
			BatchSize:      5,
			Timeout:        60 * time.Second,
			QueryCacheSize: 256,
		},
		Retrieve: RetrieveConfig{
			TopK:        35,
			Threshold:   0.45,
			Parallelism: 8,
		},
		Rerank: RerankConfig{
			Enabled:          false, // Disabled by default (requires API key)
			Provider:         "llm",
			Model:            "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			Candidates:       20,
			TopN:             5,
			SimilarityWeight: 0.3,
			OracleWeight:     0.5,
			MinOracleScore:   1,
			Timeout:          15 * time.Second,
		},
		Cache: CacheConfig{
			MetadataTTL: 300 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			MaxUpdates: 10,
			Timeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks value ranges that the engine relies on.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	if c.Store.WriteBatchSize <= 0 {
		return fmt.Errorf("store.write_batch_size must be positive, got %d", c.Store.WriteBatchSize)
	}
	switch c.Store.Driver {
	case "bolt", "memory":
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Rerank.Enabled {
		if c.Rerank.Candidates <= 0 || c.Rerank.TopN <= 0 {
			return fmt.Errorf("rerank.candidates and rerank.top_n must be positive")
		}
		if c.Rerank.SimilarityWeight < 0 || c.Rerank.OracleWeight < 0 {
			return fmt.Errorf("rerank weights must be non-negative")
		}
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".rag", "index.db")
}

// EnsureRAGDir ensures the .rag directory exists.
func EnsureRAGDir(dir string) error {
	ragDir := filepath.Join(dir, ".rag")
	return os.MkdirAll(ragDir, 0755)
}
