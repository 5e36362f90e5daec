package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Index   IndexConfig   `mapstructure:"index"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Query   QueryConfig   `mapstructure:"query"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// LLMConfig covers both the embedding client and the generation chain.
// GenerationModels is ordered most capable first; each is tried once per
// question before falling back to the extractive answer.
type LLMConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	EmbedModel       string        `mapstructure:"embed_model"`
	GenerationModels []string      `mapstructure:"generation_models"`
	Temperature      float64       `mapstructure:"temperature"`
	TopK             int           `mapstructure:"top_k"`
	TopP             float64       `mapstructure:"top_p"`
	MaxOutputTokens  int           `mapstructure:"max_output_tokens"`
	EmbedTimeout     time.Duration `mapstructure:"embed_timeout"`
	GenerateTimeout  time.Duration `mapstructure:"generate_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

type IndexConfig struct {
	Backend    string `mapstructure:"backend"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Dimension  int    `mapstructure:"dimension"`
}

type IngestConfig struct {
	DocumentsDir   string        `mapstructure:"documents_dir"`
	MaxDocuments   int           `mapstructure:"max_documents"`
	DocBatchSize   int           `mapstructure:"doc_batch_size"`
	BatchPause     time.Duration `mapstructure:"batch_pause"`
	EmbedBatchSize int           `mapstructure:"embed_batch_size"`
	EmbedInterval  time.Duration `mapstructure:"embed_interval"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
	MinTextLength  int           `mapstructure:"min_text_length"`
	ReportPath     string        `mapstructure:"report_path"`
}

type QueryConfig struct {
	TopK        int     `mapstructure:"top_k"`
	MaxDistance float64 `mapstructure:"max_distance"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	HealthAddr string `mapstructure:"health_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Index.Backend != "" && c.Index.Backend != "chroma" && c.Index.Backend != "qdrant" {
		warnings = append(warnings, fmt.Sprintf("index backend '%s' is not one of chroma, qdrant", c.Index.Backend))
	}

	// Check temperature range [0, 2.0]
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxOutputTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_output_tokens %d is negative", c.LLM.MaxOutputTokens))
	}

	// Overlap must leave room for new content in each chunk
	if c.Ingest.ChunkSize > 0 && c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		warnings = append(warnings, fmt.Sprintf("chunk_overlap %d is not smaller than chunk_size %d", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize))
	}

	if c.Query.MaxDistance < 0 {
		warnings = append(warnings, fmt.Sprintf("query max_distance %.2f is negative", c.Query.MaxDistance))
	}

	return warnings
}

// Load reads configuration from an optional file and the environment.
// Every key can be supplied as DOCQUERY_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.embed_model", "text-embedding-004")
	v.SetDefault("llm.generation_models", []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-1.5-flash-8b"})
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.max_output_tokens", 1024)
	v.SetDefault("llm.embed_timeout", 30*time.Second)
	v.SetDefault("llm.generate_timeout", 20*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)

	v.SetDefault("index.backend", "chroma")
	v.SetDefault("index.host", "localhost")
	v.SetDefault("index.port", 8000)
	v.SetDefault("index.collection", "documents")
	v.SetDefault("index.dimension", 768)

	v.SetDefault("ingest.documents_dir", "documents")
	v.SetDefault("ingest.max_documents", 20)
	v.SetDefault("ingest.doc_batch_size", 2)
	v.SetDefault("ingest.batch_pause", 2*time.Second)
	v.SetDefault("ingest.embed_batch_size", 10)
	v.SetDefault("ingest.embed_interval", time.Second)
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 200)
	v.SetDefault("ingest.min_text_length", 100)

	v.SetDefault("query.top_k", 5)
	v.SetDefault("query.max_distance", 1.5)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.health_addr", ":8081")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.sample_rate", 1.0)
}
