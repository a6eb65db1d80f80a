package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/config"
	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/graph/store"
	"github.com/dshills/ragflow/rag"
	"github.com/dshills/ragflow/websearch"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.LLM.OpenAIAPIKey = "sk-test"
	cfg.Vector.Pinecone.APIKey = "pc-test"
	cfg.Vector.Pinecone.Host = "index.svc.pinecone.io"
	return cfg
}

// build registers engine metrics on the global registry, so it runs once
// per test binary.
func TestBuild(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	a, err := build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.close(zap.NewNop())

	if a.agent == nil || a.server == nil {
		t.Fatal("agent and server must be set")
	}
	if got := a.agent.Config().SimilarityThreshold; got != rag.DefaultSimilarityThreshold {
		t.Errorf("threshold = %v", got)
	}
	if _, ok := a.agent.Store().(*store.MemStore[rag.State]); !ok {
		t.Errorf("store = %T, want *store.MemStore", a.agent.Store())
	}

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET / = %d", rec.Code)
	}
}

func TestNewChatModels(t *testing.T) {
	costs := model.NewCostTracker(10)
	tests := []struct {
		name      string
		provider  string
		wantClose bool
		wantErr   bool
	}{
		{name: "openai", provider: config.ProviderOpenAI},
		{name: "anthropic", provider: config.ProviderAnthropic},
		{name: "google", provider: config.ProviderGoogle, wantClose: true},
		{name: "unknown", provider: "cohere", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig().LLM
			cfg.Provider = tt.provider
			gen, grade, err := newChatModels(cfg, costs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newChatModels: %v", err)
			}
			if gen == nil || grade == nil {
				t.Fatal("models must be non-nil")
			}
			c, ok := gen.(interface{ Close() error })
			if ok != tt.wantClose {
				t.Fatalf("closable = %v, want %v", ok, tt.wantClose)
			}
			if ok {
				if err := c.Close(); err != nil {
					t.Errorf("Close: %v", err)
				}
			}
		})
	}
}

func TestNewWebSearch(t *testing.T) {
	t.Run("providers", func(t *testing.T) {
		a := &app{}
		cfg := config.WebSearchConfig{TavilyAPIKey: "tv-test", DuckDuckGo: true}
		preferred, fallback, err := newWebSearch(a, cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("newWebSearch: %v", err)
		}
		if preferred == nil || preferred.Name() != "tavily" {
			t.Errorf("preferred = %v", preferred)
		}
		if fallback == nil || fallback.Name() != "duckduckgo" {
			t.Errorf("fallback = %v", fallback)
		}
		if len(a.closers) != 0 {
			t.Errorf("closers = %d, want 0", len(a.closers))
		}
	})

	t.Run("none", func(t *testing.T) {
		preferred, fallback, err := newWebSearch(&app{}, config.WebSearchConfig{}, zap.NewNop())
		if err != nil {
			t.Fatalf("newWebSearch: %v", err)
		}
		if preferred != nil || fallback != nil {
			t.Errorf("got %v, %v; want nil providers", preferred, fallback)
		}
	})

	t.Run("cached", func(t *testing.T) {
		mr := miniredis.RunT(t)
		a := &app{}
		cfg := config.WebSearchConfig{DuckDuckGo: true, RedisURL: "redis://" + mr.Addr()}
		preferred, fallback, err := newWebSearch(a, cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("newWebSearch: %v", err)
		}
		defer a.close(zap.NewNop())
		if preferred != nil {
			t.Errorf("preferred = %v, want nil", preferred)
		}
		if _, ok := fallback.(*websearch.Cached); !ok {
			t.Errorf("fallback = %T, want *websearch.Cached", fallback)
		}
		if len(a.closers) != 1 {
			t.Errorf("closers = %d, want 1", len(a.closers))
		}
	})

	t.Run("bad redis url", func(t *testing.T) {
		cfg := config.WebSearchConfig{DuckDuckGo: true, RedisURL: "://nope"}
		if _, _, err := newWebSearch(&app{}, cfg, zap.NewNop()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestNewHistory(t *testing.T) {
	a := &app{}
	st, err := newHistory(a, config.StoreConfig{Driver: config.StoreSQLite, DSN: t.TempDir() + "/runs.db"})
	if err != nil {
		t.Fatalf("newHistory: %v", err)
	}
	defer a.close(zap.NewNop())
	if _, ok := st.(store.Pinger); !ok {
		t.Errorf("sqlite store should report health")
	}
	if len(a.closers) != 1 {
		t.Errorf("closers = %d, want 1", len(a.closers))
	}

	if _, err := newHistory(&app{}, config.StoreConfig{Driver: "postgres"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg     config.LogConfig
		wantErr bool
	}{
		{cfg: config.LogConfig{Level: "info", Format: "json"}},
		{cfg: config.LogConfig{Level: "debug", Format: "console"}},
		{cfg: config.LogConfig{Level: "loud", Format: "json"}, wantErr: true},
	}
	for _, tt := range tests {
		logger, err := newLogger(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%+v: expected error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%+v: %v", tt.cfg, err)
		}
		if got := logger.Core().Enabled(zap.DebugLevel); got != (tt.cfg.Level == "debug") {
			t.Errorf("%+v: debug enabled = %v", tt.cfg, got)
		}
	}
}
