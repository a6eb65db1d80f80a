// Package config loads the service configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file and environment variables. Load validates the result.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/ragflow/rag"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Vector    VectorConfig    `yaml:"vector"`
	Graph     GraphConfig     `yaml:"graph"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Store     StoreConfig     `yaml:"store"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// AgentConfig tunes the workflow.
type AgentConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	RetrievalK          int           `yaml:"retrieval_k"`
	MaxIterations       int           `yaml:"max_iterations"`
	GraphLimit          int           `yaml:"graph_limit"`
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`
	NodeTimeout         time.Duration `yaml:"node_timeout"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
}

// RAG converts to the agent's configuration.
func (a AgentConfig) RAG() rag.Config {
	return rag.Config{
		SimilarityThreshold: a.SimilarityThreshold,
		RetrievalK:          a.RetrievalK,
		MaxIterations:       a.MaxIterations,
		GraphLimit:          a.GraphLimit,
		CollaboratorTimeout: a.CollaboratorTimeout,
		NodeTimeout:         a.NodeTimeout,
		RunTimeout:          a.RunTimeout,
	}
}

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// LLMConfig selects the language model provider and models.
type LLMConfig struct {
	Provider string `yaml:"provider"`

	// GenerationModel writes answers and classifies intent.
	GenerationModel string `yaml:"generation_model"`

	// GradingModel grades evidence and rewrites queries.
	GradingModel string `yaml:"grading_model"`

	// EmbeddingModel always runs on OpenAI.
	EmbeddingModel string `yaml:"embedding_model"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GoogleAPIKey    string `yaml:"google_api_key"`

	MaxRetries int `yaml:"max_retries"`
}

// Vector backends.
const (
	BackendPinecone = "pinecone"
	BackendPGVector = "pgvector"
)

// VectorConfig selects the vector index.
type VectorConfig struct {
	Backend  string         `yaml:"backend"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	PGVector PGVectorConfig `yaml:"pgvector"`
}

// PineconeConfig configures the Pinecone backend.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
	TextField string `yaml:"text_field"`
}

// PGVectorConfig configures the pgvector backend.
type PGVectorConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// GraphConfig configures the optional Neo4j knowledge graph. An empty URI
// disables it.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Enabled reports whether a graph is configured.
func (g GraphConfig) Enabled() bool {
	return g.URI != ""
}

// WebSearchConfig configures the web fallback providers.
type WebSearchConfig struct {
	// TavilyAPIKey enables Tavily as the preferred provider.
	TavilyAPIKey string `yaml:"tavily_api_key"`

	// DuckDuckGo enables the keyless fallback provider.
	DuckDuckGo bool `yaml:"duckduckgo"`

	// RedisURL enables result caching, e.g. redis://localhost:6379/0.
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// StoreConfig selects where step history is kept.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	MaxRuns int    `yaml:"max_runs"`
}

// TracingConfig configures OTLP trace export. An empty endpoint disables it.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Agent: AgentConfig{
			SimilarityThreshold: rag.DefaultSimilarityThreshold,
			RetrievalK:          rag.DefaultRetrievalK,
			MaxIterations:       rag.DefaultMaxIterations,
			GraphLimit:          rag.DefaultGraphLimit,
			CollaboratorTimeout: rag.DefaultCollaboratorTimeout,
			NodeTimeout:         rag.DefaultNodeTimeout,
		},
		LLM: LLMConfig{
			Provider:        ProviderOpenAI,
			GenerationModel: "gpt-4o",
			GradingModel:    "gpt-4o-mini",
			EmbeddingModel:  "text-embedding-3-small",
			MaxRetries:      3,
		},
		Vector: VectorConfig{
			Backend:  BackendPinecone,
			Pinecone: PineconeConfig{TextField: "text"},
			PGVector: PGVectorConfig{Table: "documents"},
		},
		Graph:     GraphConfig{User: "neo4j"},
		WebSearch: WebSearchConfig{DuckDuckGo: true, CacheTTL: 15 * time.Minute},
		Store:     StoreConfig{Driver: StoreMemory, MaxRuns: 1000},
		Tracing:   TracingConfig{ServiceName: "ragflow"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			}
		}
	}

	str("OPENAI_API_KEY", &c.LLM.OpenAIAPIKey)
	str("ANTHROPIC_API_KEY", &c.LLM.AnthropicAPIKey)
	str("GOOGLE_API_KEY", &c.LLM.GoogleAPIKey)
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("OPENAI_MODEL", &c.LLM.GenerationModel)
	str("PINECONE_API_KEY", &c.Vector.Pinecone.APIKey)
	str("PINECONE_HOST", &c.Vector.Pinecone.Host)
	str("PINECONE_NAMESPACE", &c.Vector.Pinecone.Namespace)
	str("VECTOR_BACKEND", &c.Vector.Backend)
	str("PGVECTOR_DSN", &c.Vector.PGVector.DSN)
	str("NEO4J_URI", &c.Graph.URI)
	str("NEO4J_USER", &c.Graph.User)
	str("NEO4J_PASSWORD", &c.Graph.Password)
	str("TAVILY_API_KEY", &c.WebSearch.TavilyAPIKey)
	str("REDIS_URL", &c.WebSearch.RedisURL)
	str("API_HOST", &c.Server.Host)
	str("LOG_LEVEL", &c.Log.Level)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)

	parse("SIMILARITY_THRESHOLD", func(v string) (err error) {
		c.Agent.SimilarityThreshold, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RETRIEVAL_K", func(v string) (err error) {
		c.Agent.RetrievalK, err = strconv.Atoi(v)
		return err
	})
	parse("MAX_ITERATIONS", func(v string) (err error) {
		c.Agent.MaxIterations, err = strconv.Atoi(v)
		return err
	})
	parse("API_PORT", func(v string) (err error) {
		c.Server.Port, err = strconv.Atoi(v)
		return err
	})
	parse("CORS_ORIGINS", func(v string) error {
		c.Server.CORSOrigins = splitList(v)
		return nil
	})
	return errors.Join(errs...)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		bad("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if t := c.Agent.SimilarityThreshold; t < 0 || t > 1 {
		bad("agent.similarity_threshold must be in [0,1], got %v", t)
	}
	if c.Agent.RetrievalK < 1 {
		bad("agent.retrieval_k must be >= 1, got %d", c.Agent.RetrievalK)
	}
	if c.Agent.MaxIterations < 0 {
		bad("agent.max_iterations must be >= 0, got %d", c.Agent.MaxIterations)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			bad("llm.openai_api_key is required for provider openai")
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			bad("llm.anthropic_api_key is required for provider anthropic")
		}
	case ProviderGoogle:
		if c.LLM.GoogleAPIKey == "" {
			bad("llm.google_api_key is required for provider google")
		}
	default:
		bad("llm.provider must be openai, anthropic or google, got %q", c.LLM.Provider)
	}
	if c.LLM.OpenAIAPIKey == "" && c.LLM.Provider != ProviderOpenAI {
		bad("llm.openai_api_key is required for embeddings")
	}

	switch c.Vector.Backend {
	case BackendPinecone:
		if c.Vector.Pinecone.APIKey == "" || c.Vector.Pinecone.Host == "" {
			bad("vector.pinecone.api_key and vector.pinecone.host are required")
		}
	case BackendPGVector:
		if c.Vector.PGVector.DSN == "" {
			bad("vector.pgvector.dsn is required")
		}
	default:
		bad("vector.backend must be pinecone or pgvector, got %q", c.Vector.Backend)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StoreMySQL:
		if c.Store.DSN == "" {
			bad("store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		bad("store.driver must be memory, sqlite or mysql, got %q", c.Store.Driver)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		bad("log.format must be json or console, got %q", c.Log.Format)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
