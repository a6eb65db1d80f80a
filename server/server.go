// Package server exposes the agent over HTTP.
//
// Routes:
//
//	GET  /                   service information
//	GET  /health             liveness and dependency checks
//	POST /chat               answer a query
//	POST /chat/stream        answer a query as server-sent events
//	GET  /chat/ws            answer queries over a websocket
//	GET  /metrics            query statistics and LLM spend as JSON
//	GET  /metrics/prometheus prometheus exposition
//	GET  /runs/{id}          latest persisted state of a run
//	GET  /runs/{id}/steps    step history of a run
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/graph/store"
	"github.com/dshills/ragflow/rag"
)

// Version is reported by / and /health.
const Version = "1.0.0"

// Runner answers queries. *rag.Agent implements it.
type Runner interface {
	Invoke(ctx context.Context, req rag.Request) (rag.Response, error)
	Stream(ctx context.Context, req rag.Request, send func(rag.StreamEvent) error) error
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	runner   Runner
	stats    *rag.Stats
	costs    *model.CostTracker
	history  store.Store[rag.State]
	checks   map[string]store.Pinger
	gatherer prometheus.Gatherer
	origins  []string
	logger   *zap.Logger
	started  time.Time

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Option configures a Server.
type Option func(*Server)

// WithStats reports query statistics on /metrics.
func WithStats(s *rag.Stats) Option {
	return func(srv *Server) { srv.stats = s }
}

// WithCostTracker reports LLM spend on /metrics.
func WithCostTracker(ct *model.CostTracker) Option {
	return func(srv *Server) { srv.costs = ct }
}

// WithHistory serves run history from st.
func WithHistory(st store.Store[rag.State]) Option {
	return func(srv *Server) { srv.history = st }
}

// WithHealthCheck adds a dependency to /health under name.
func WithHealthCheck(name string, p store.Pinger) Option {
	return func(srv *Server) {
		if p != nil {
			srv.checks[name] = p
		}
	}
}

// WithCORSOrigins allows cross-origin requests from origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(srv *Server) { srv.origins = origins }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// WithPrometheus registers HTTP metrics on reg and serves gatherer on
// /metrics/prometheus. The default is the global registry.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(srv *Server) {
		srv.newMetrics(reg)
		srv.gatherer = gatherer
	}
}

// New creates a Server. A nil runner makes the query endpoints answer 503.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:  runner,
		checks:  make(map[string]store.Pinger),
		logger:  zap.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.requests == nil {
		s.newMetrics(prometheus.DefaultRegisterer)
		s.gatherer = prometheus.DefaultGatherer
	}
	s.logger = s.logger.With(zap.String("component", "server"))
	return s
}

func (s *Server) newMetrics(reg prometheus.Registerer) {
	factory := promauto.With(reg)
	s.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragflow",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "code"})
	s.latency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ragflow",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	r.HandleFunc("/chat/ws", s.handleChatWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.Handle("/metrics/prometheus", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/steps", s.handleRunSteps).Methods(http.MethodGet)

	return s.cors(r)
}
