package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.LLM.OpenAIAPIKey = "sk-test"
	cfg.Vector.Pinecone.APIKey = "pc"
	cfg.Vector.Pinecone.Host = "docs.svc.pinecone.io"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Agent.SimilarityThreshold != 0.65 || cfg.Agent.RetrievalK != 5 || cfg.Agent.MaxIterations != 3 {
		t.Errorf("agent defaults = %+v", cfg.Agent)
	}
	if cfg.Server.Addr() != "0.0.0.0:8000" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
	if cfg.LLM.GenerationModel != "gpt-4o" || cfg.LLM.GradingModel != "gpt-4o-mini" {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.Graph.Enabled() {
		t.Error("graph enabled without uri")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
  cors_origins: ["https://app.example.com"]
agent:
  similarity_threshold: 0.7
  collaborator_timeout: 10s
  run_timeout: 2m
llm:
  openai_api_key: sk-file
vector:
  backend: pgvector
  pgvector:
    dsn: postgres://localhost/rag
store:
  driver: sqlite
  dsn: ragflow.db
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RETRIEVAL_K", "8")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Agent.SimilarityThreshold != 0.7 || cfg.Agent.RetrievalK != 8 || cfg.Agent.MaxIterations != 3 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Agent.CollaboratorTimeout != 10*time.Second || cfg.Agent.RunTimeout != 2*time.Minute {
		t.Errorf("timeouts = %+v", cfg.Agent)
	}
	if cfg.LLM.OpenAIAPIKey != "sk-env" {
		t.Errorf("env did not override file: %q", cfg.LLM.OpenAIAPIKey)
	}
	if cfg.Vector.Backend != BackendPGVector || cfg.Store.Driver != StoreSQLite {
		t.Errorf("config = %+v", cfg)
	}

	rc := cfg.Agent.RAG()
	if rc.RetrievalK != 8 || rc.CollaboratorTimeout != 10*time.Second {
		t.Errorf("RAG() = %+v", rc)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  unknown_field: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("unknown field err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"SIMILARITY_THRESHOLD": "0.5",
		"MAX_ITERATIONS":       "2",
		"API_PORT":             "8080",
		"CORS_ORIGINS":         "https://a.example.com, https://b.example.com,",
		"NEO4J_URI":            "bolt://localhost:7687",
		"TAVILY_API_KEY":       "tvly",
		"LOG_LEVEL":            "debug",
		"REDIS_URL":            "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Agent.SimilarityThreshold != 0.5 || cfg.Agent.MaxIterations != 2 || cfg.Server.Port != 8080 {
		t.Errorf("config = %+v", cfg)
	}
	if strings.Join(cfg.Server.CORSOrigins, "|") != "https://a.example.com|https://b.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if !cfg.Graph.Enabled() || cfg.WebSearch.TavilyAPIKey != "tvly" || cfg.Log.Level != "debug" {
		t.Errorf("config = %+v", cfg)
	}

	err = cfg.ApplyEnv(env(map[string]string{"RETRIEVAL_K": "five", "API_PORT": "x"}))
	if err == nil || !strings.Contains(err.Error(), "RETRIEVAL_K") || !strings.Contains(err.Error(), "API_PORT") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"threshold", func(c *Config) { c.Agent.SimilarityThreshold = 1.2 }, "similarity_threshold"},
		{"retrieval k", func(c *Config) { c.Agent.RetrievalK = 0 }, "retrieval_k"},
		{"provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"anthropic key", func(c *Config) { c.LLM.Provider = ProviderAnthropic }, "anthropic_api_key"},
		{"embedding key", func(c *Config) {
			c.LLM.Provider = ProviderGoogle
			c.LLM.GoogleAPIKey = "g"
			c.LLM.OpenAIAPIKey = ""
		}, "embeddings"},
		{"pinecone", func(c *Config) { c.Vector.Pinecone.Host = "" }, "vector.pinecone"},
		{"pgvector", func(c *Config) { c.Vector.Backend = BackendPGVector }, "vector.pgvector.dsn"},
		{"backend", func(c *Config) { c.Vector.Backend = "faiss" }, "vector.backend"},
		{"store dsn", func(c *Config) { c.Store.Driver = StoreMySQL }, "store.dsn"},
		{"store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"log format", func(c *Config) { c.Log.Format = "text" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
