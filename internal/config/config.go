// Package config loads the service configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/igm503/arxiv-troller/internal/papers"
)

// Config is the top-level service configuration shared by the search server
// and the harvest/embed jobs.
type Config struct {
	Port     int            `yaml:"port"`
	Database DatabaseConfig `yaml:"database"`
	Index    IndexConfig    `yaml:"index"`
	Variant  papers.Variant `yaml:"variant"`
	Search   SearchConfig   `yaml:"search"`
	Embed    EmbedConfig    `yaml:"embedding"`
	Harvest  HarvestConfig  `yaml:"harvest"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConnections int32  `yaml:"max_connections,omitempty"`
}

// IndexConfig selects the vector index backend. "postgres" serves nearest-
// neighbor queries from pgvector; "qdrant" mirrors float vectors into a
// Qdrant collection and searches there.
type IndexConfig struct {
	Backend   string `yaml:"backend"`
	QdrantURL string `yaml:"qdrant_url,omitempty"`
}

// SearchConfig carries the retrieval constants and recall hints.
type SearchConfig struct {
	ResultsPerPage int      `yaml:"results_per_page,omitempty"`
	MaxResults     int      `yaml:"max_results,omitempty"`
	TagBudget      Duration `yaml:"tag_budget,omitempty"`

	EfSearch      int    `yaml:"ef_search,omitempty"`
	IterativeScan string `yaml:"iterative_scan,omitempty"`
	MaxScanTuples int    `yaml:"max_scan_tuples,omitempty"`
}

// EmbedConfig configures the embedding provider and batch job.
type EmbedConfig struct {
	Provider  string   `yaml:"provider"` // "openai" or "ollama"
	OllamaURL string   `yaml:"ollama_url,omitempty"`
	OpenAIKey string   `yaml:"openai_key,omitempty"`
	BatchSize int      `yaml:"batch_size,omitempty"`
	Interval  Duration `yaml:"interval,omitempty"`
}

// HarvestConfig configures the metadata harvest job.
type HarvestConfig struct {
	Categories     []string `yaml:"categories"`
	PageSize       int      `yaml:"page_size,omitempty"`
	MaxPerCategory int      `yaml:"max_per_category,omitempty"`
	Interval       Duration `yaml:"interval,omitempty"`
	UserAgent      string   `yaml:"user_agent,omitempty"`
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables if not set in YAML
	if config.Embed.OpenAIKey == "" {
		config.Embed.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if dsn := os.Getenv("TROLLER_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("port must be greater than 0")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if err := c.Variant.Validate(); err != nil {
		return fmt.Errorf("variant: %w", err)
	}

	switch c.Index.Backend {
	case "", "postgres":
	case "qdrant":
		if c.Index.QdrantURL == "" {
			return fmt.Errorf("index.qdrant_url is required for the qdrant backend")
		}
		if c.Variant.Kind != papers.VariantFloat {
			return fmt.Errorf("qdrant backend supports float variants only")
		}
	default:
		return fmt.Errorf("index.backend must be \"postgres\" or \"qdrant\", got %q", c.Index.Backend)
	}

	switch c.Search.IterativeScan {
	case "", "off", "strict_order", "relaxed_order":
	default:
		return fmt.Errorf("search.iterative_scan must be off, strict_order, or relaxed_order")
	}

	switch c.Embed.Provider {
	case "", "ollama":
	case "openai":
		if c.Embed.OpenAIKey == "" {
			return fmt.Errorf("embedding.openai_key (or OPENAI_API_KEY) is required for the openai provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"ollama\", got %q", c.Embed.Provider)
	}

	return nil
}
