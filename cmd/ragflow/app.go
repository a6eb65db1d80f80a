package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/config"
	"github.com/dshills/ragflow/graph"
	"github.com/dshills/ragflow/graph/emit"
	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/graph/model/anthropic"
	"github.com/dshills/ragflow/graph/model/google"
	"github.com/dshills/ragflow/graph/model/openai"
	"github.com/dshills/ragflow/graph/store"
	"github.com/dshills/ragflow/graph/tool"
	"github.com/dshills/ragflow/knowledge/neo4j"
	"github.com/dshills/ragflow/rag"
	"github.com/dshills/ragflow/retrieval"
	"github.com/dshills/ragflow/retrieval/pgvector"
	"github.com/dshills/ragflow/retrieval/pinecone"
	"github.com/dshills/ragflow/server"
	"github.com/dshills/ragflow/websearch"
)

// app is the assembled service. closers run in reverse order on shutdown.
type app struct {
	server  *server.Server
	agent   *rag.Agent
	closers []func(context.Context) error
}

func (a *app) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

func (a *app) close(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

// build wires every collaborator named by cfg. On error the resources opened
// so far are released.
func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.close(logger)
			a = nil
		}
	}()

	costs := model.NewCostTracker(1000)
	generator, grader, err := newChatModels(cfg.LLM, costs)
	if err != nil {
		return a, err
	}
	if c, ok := generator.(interface{ Close() error }); ok {
		a.onClose(func(context.Context) error { return c.Close() })
	}

	embedder := openai.NewEmbedder(cfg.LLM.OpenAIAPIKey, cfg.LLM.EmbeddingModel)
	vectors, vectorCheck, err := newVectors(ctx, a, cfg.Vector, embedder, logger)
	if err != nil {
		return a, err
	}

	var graphQuerier rag.GraphQuerier
	var graphCheck store.Pinger
	if cfg.Graph.Enabled() {
		g, err := neo4j.Connect(ctx, neo4j.Config{
			URI:      cfg.Graph.URI,
			User:     cfg.Graph.User,
			Password: cfg.Graph.Password,
			Database: cfg.Graph.Database,
		}, neo4j.WithLogger(logger))
		if err != nil {
			// The graph is optional; the enricher reports it unavailable.
			logger.Warn("knowledge graph disabled", zap.Error(err))
		} else {
			if err := g.EnsureIndexes(ctx); err != nil {
				logger.Warn("knowledge graph indexes not created", zap.Error(err))
			}
			a.onClose(g.Close)
			graphQuerier, graphCheck = g, g
		}
	}

	preferred, fallback, err := newWebSearch(a, cfg.WebSearch, logger)
	if err != nil {
		return a, err
	}

	history, err := newHistory(a, cfg.Store)
	if err != nil {
		return a, err
	}

	emitters := []emit.Emitter{emit.NewLogEmitter(logger)}
	if cfg.Tracing.OTLPEndpoint != "" {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return a, err
		}
		a.onClose(tp.Shutdown)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("ragflow")))
	}

	stats := rag.NewStats()
	agent, err := rag.NewAgent(cfg.Agent.RAG(), rag.Collaborators{
		Classifier:      rag.NewChatCompleter(generator, model.WithTemperature(0)),
		Generator:       rag.NewChatCompleter(generator, model.WithTemperature(0)),
		Grader:          rag.NewChatCompleter(grader, model.WithTemperature(0)),
		Rewriter:        rag.NewChatCompleter(grader, model.WithTemperature(0.3)),
		Vectors:         vectors,
		Graph:           graphQuerier,
		PreferredSearch: preferred,
		FallbackSearch:  fallback,
	},
		rag.WithLogger(logger),
		rag.WithStore(history),
		rag.WithEmitter(emit.NewMulti(emitters...)),
		rag.WithMetrics(graph.NewPrometheusMetrics(prometheus.DefaultRegisterer, "ragflow")),
		rag.WithStats(stats),
	)
	if err != nil {
		return a, err
	}
	a.agent = agent

	opts := []server.Option{
		server.WithStats(stats),
		server.WithCostTracker(costs),
		server.WithHistory(history),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithLogger(logger),
		server.WithHealthCheck("vector_store", vectorCheck),
	}
	if graphCheck != nil {
		opts = append(opts, server.WithHealthCheck("knowledge_graph", graphCheck))
	}
	if p, ok := history.(store.Pinger); ok {
		opts = append(opts, server.WithHealthCheck("run_store", p))
	}
	a.server = server.New(agent, opts...)

	logger.Info("agent ready",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.Bool("knowledge_graph", graphQuerier != nil),
		zap.Bool("web_search", preferred != nil || fallback != nil),
		zap.String("store", cfg.Store.Driver),
	)
	return a, nil
}

// newChatModels returns the generation and grading models for the configured
// provider, each retried and cost-tracked.
func newChatModels(cfg config.LLMConfig, costs *model.CostTracker) (generator, grader model.ChatModel, err error) {
	policy := model.DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	wrap := func(m model.ChatModel, name string) model.ChatModel {
		return model.Tracked(model.WithRetry(m, policy), costs, name)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		generator = openai.NewChatModel(cfg.OpenAIAPIKey, cfg.GenerationModel)
		grader = openai.NewChatModel(cfg.OpenAIAPIKey, cfg.GradingModel)
	case config.ProviderAnthropic:
		generator = anthropic.NewChatModel(cfg.AnthropicAPIKey, cfg.GenerationModel)
		grader = anthropic.NewChatModel(cfg.AnthropicAPIKey, cfg.GradingModel)
	case config.ProviderGoogle:
		// One SDK client serves both roles.
		m := google.NewChatModel(cfg.GoogleAPIKey, cfg.GenerationModel)
		return closingModel{wrap(m, cfg.GenerationModel), m}, wrap(m, cfg.GenerationModel), nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return wrap(generator, cfg.GenerationModel), wrap(grader, cfg.GradingModel), nil
}

// closingModel keeps the underlying client's Close reachable through the
// retry and cost wrappers.
type closingModel struct {
	model.ChatModel
	client interface{ Close() error }
}

func (c closingModel) Close() error { return c.client.Close() }

func newVectors(ctx context.Context, a *app, cfg config.VectorConfig, embedder retrieval.Embedder, logger *zap.Logger) (rag.VectorSearcher, store.Pinger, error) {
	switch cfg.Backend {
	case config.BackendPinecone:
		idx, err := pinecone.New(pinecone.Config{
			APIKey:    cfg.Pinecone.APIKey,
			Host:      cfg.Pinecone.Host,
			Namespace: cfg.Pinecone.Namespace,
			TextField: cfg.Pinecone.TextField,
		}, embedder, pinecone.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return idx, idx, nil
	case config.BackendPGVector:
		idx, err := pgvector.Open(ctx, cfg.PGVector.DSN, embedder,
			pgvector.WithTable(cfg.PGVector.Table), pgvector.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(func(context.Context) error { idx.Close(); return nil })
		return idx, idx, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// newWebSearch builds the preferred and fallback providers. Either may be
// nil. A redis URL puts both behind the shared result cache.
func newWebSearch(a *app, cfg config.WebSearchConfig, logger *zap.Logger) (preferred, fallback rag.WebSearcher, err error) {
	var httpOpts []tool.HTTPOption
	if cfg.RequestsPerSecond > 0 {
		httpOpts = append(httpOpts, tool.WithRateLimit(cfg.RequestsPerSecond, 1))
	}

	if cfg.TavilyAPIKey != "" {
		t, err := websearch.NewTavily(cfg.TavilyAPIKey, httpOpts)
		if err != nil {
			return nil, nil, err
		}
		preferred = t
	}
	if cfg.DuckDuckGo {
		fallback = websearch.NewDuckDuckGo(websearch.DuckDuckGoEndpoint, httpOpts...)
	}
	if cfg.RedisURL == "" {
		return preferred, fallback, nil
	}

	ropts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("web search cache: %w", err)
	}
	rdb := redis.NewClient(ropts)
	a.onClose(func(context.Context) error { return rdb.Close() })
	cache := func(next rag.WebSearcher) rag.WebSearcher {
		if next == nil {
			return nil
		}
		return websearch.NewCached(next, rdb, websearch.WithTTL(cfg.CacheTTL), websearch.WithCacheLogger(logger))
	}
	return cache(preferred), cache(fallback), nil
}

func newHistory(a *app, cfg config.StoreConfig) (store.Store[rag.State], error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return store.NewMemStore[rag.State](cfg.MaxRuns), nil
	case config.StoreSQLite:
		st, err := store.NewSQLiteStore[rag.State](cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		return st, nil
	case config.StoreMySQL:
		st, err := store.NewMySQLStore[rag.State](cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newTracerProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(server.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
