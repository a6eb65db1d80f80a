package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
	"github.com/dshills/ragflow/graph/emit"
	"github.com/dshills/ragflow/graph/store"
)

// DefaultNodeTimeout bounds a single step.
const DefaultNodeTimeout = 2 * time.Minute

// Config tunes the agent.
type Config struct {
	// SimilarityThreshold is the minimum similarity, in [0,1], for the best
	// match (retriever) and the mean match (grader).
	SimilarityThreshold float64

	// RetrievalK is how many passages to retrieve.
	RetrievalK int

	// MaxIterations is the rewrite budget.
	MaxIterations int

	// GraphLimit caps the entities requested from the knowledge graph.
	GraphLimit int

	// CollaboratorTimeout bounds each external call.
	CollaboratorTimeout time.Duration

	// NodeTimeout bounds each step.
	NodeTimeout time.Duration

	// RunTimeout bounds a whole run. 0 means no limit beyond the caller's
	// context.
	RunTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		RetrievalK:          DefaultRetrievalK,
		MaxIterations:       DefaultMaxIterations,
		GraphLimit:          DefaultGraphLimit,
		CollaboratorTimeout: DefaultCollaboratorTimeout,
		NodeTimeout:         DefaultNodeTimeout,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return c, fmt.Errorf("similarity threshold must be in [0,1], got %v", c.SimilarityThreshold)
	}
	if c.RetrievalK < 0 || c.MaxIterations < 0 || c.GraphLimit < 0 {
		return c, errors.New("retrieval k, max iterations and graph limit must be >= 0")
	}
	if c.CollaboratorTimeout < 0 || c.NodeTimeout < 0 || c.RunTimeout < 0 {
		return c, errors.New("timeouts must be >= 0")
	}
	if c.RetrievalK == 0 {
		c.RetrievalK = DefaultRetrievalK
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.GraphLimit == 0 {
		c.GraphLimit = DefaultGraphLimit
	}
	if c.CollaboratorTimeout == 0 {
		c.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if c.NodeTimeout == 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}
	return c, nil
}

// Collaborators are the external capabilities the agent orchestrates.
type Collaborators struct {
	// Classifier labels query intent. Required.
	Classifier StructuredCompleter

	// Generator writes grounded answers. Required.
	Generator TextCompleter

	// Grader judges relevance; defaults to Generator.
	Grader TextCompleter

	// Rewriter reformulates queries; defaults to Generator.
	Rewriter TextCompleter

	// Vectors searches the knowledge base. Required.
	Vectors VectorSearcher

	// Graph is the optional knowledge graph.
	Graph GraphQuerier

	// PreferredSearch and FallbackSearch are optional web search providers.
	PreferredSearch WebSearcher
	FallbackSearch  WebSearcher
}

// Agent runs queries through the corrective RAG workflow.
//
// Example:
//
//	agent, err := rag.NewAgent(rag.DefaultConfig(), rag.Collaborators{
//	    Classifier: classifier,
//	    Generator:  generator,
//	    Vectors:    index,
//	}, rag.WithLogger(logger))
//	resp, err := agent.Invoke(ctx, rag.Request{Query: "What is the refund policy?"})
type Agent struct {
	cfg     Config
	engine  *graph.Engine[State, Update]
	broker  *emit.Broker
	tags    *runTags
	store   store.Store[State]
	emitter emit.Emitter
	metrics *graph.PrometheusMetrics
	stats   *Stats
	logger  *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithStore persists step history in st. The default keeps the last 1000
// runs in memory.
func WithStore(st store.Store[State]) Option {
	return func(a *Agent) {
		if st != nil {
			a.store = st
		}
	}
}

// WithEmitter sends engine events to e in addition to live stream
// subscribers.
func WithEmitter(e emit.Emitter) Option {
	return func(a *Agent) {
		a.emitter = e
	}
}

// WithMetrics records engine metrics.
func WithMetrics(m *graph.PrometheusMetrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithStats shares a query accumulator, e.g. with an HTTP server.
func WithStats(s *Stats) Option {
	return func(a *Agent) {
		if s != nil {
			a.stats = s
		}
	}
}

// NewAgent wires the seven steps into an engine.
func NewAgent(cfg Config, c Collaborators, opts ...Option) (*Agent, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if c.Classifier == nil || c.Generator == nil || c.Vectors == nil {
		return nil, errors.New("classifier, generator and vector searcher are required")
	}
	if c.Grader == nil {
		c.Grader = c.Generator
	}
	if c.Rewriter == nil {
		c.Rewriter = c.Generator
	}

	a := &Agent{
		cfg:    cfg,
		broker: emit.NewBroker(4 * MaxStepsFor(cfg.MaxIterations)),
		stats:  NewStats(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil {
		a.store = store.NewMemStore[State](1000)
	}
	a.logger = a.logger.With(zap.String("component", "agent"))
	a.tags = newRunTags(a.emitter)

	engineOpts := []graph.Option{
		graph.WithMaxSteps(MaxStepsFor(cfg.MaxIterations)),
		graph.WithDefaultNodeTimeout(cfg.NodeTimeout),
		graph.WithRunWallClockBudget(cfg.RunTimeout),
		graph.WithMetrics(a.metrics),
	}
	a.engine = graph.New[State, Update](Reduce, a.store, emit.NewMulti(a.broker, a.tags), engineOpts...)

	if err := a.register(cfg, c); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) register(cfg Config, c Collaborators) error {
	timeout := cfg.CollaboratorTimeout
	nodes := []struct {
		step Step
		node graph.Node[State, Update]
	}{
		{StepRouter, &Router{Classifier: c.Classifier, Timeout: timeout, Logger: a.logger}},
		{StepRetrieval, &Retriever{Searcher: c.Vectors, K: cfg.RetrievalK, Threshold: cfg.SimilarityThreshold, Timeout: timeout, Logger: a.logger}},
		{StepGraphEnrich, &GraphEnricher{Graph: c.Graph, Limit: cfg.GraphLimit, Timeout: timeout, Logger: a.logger}},
		{StepGrader, &Grader{Completer: c.Grader, Threshold: cfg.SimilarityThreshold, Timeout: timeout, Logger: a.logger}},
		{StepRewrite, &Rewriter{Completer: c.Rewriter, Timeout: timeout, Logger: a.logger}},
		{StepWebSearch, &WebSearchFallback{Preferred: c.PreferredSearch, Fallback: c.FallbackSearch, Timeout: timeout, Logger: a.logger}},
		{StepSynthesis, &Synthesizer{Generator: c.Generator, Timeout: timeout, Logger: a.logger}},
	}
	for _, n := range nodes {
		if err := a.engine.Add(string(n.step), n.node); err != nil {
			return err
		}
	}

	if err := a.engine.StartAt(string(StepRouter)); err != nil {
		return err
	}
	routes := []error{
		a.engine.Branch(string(StepRouter), func(s State) string { return string(RouteAfterRouter(s)) }),
		a.engine.Connect(string(StepRetrieval), string(StepGraphEnrich), nil),
		a.engine.Connect(string(StepGraphEnrich), string(StepGrader), nil),
		a.engine.Branch(string(StepGrader), func(s State) string { return string(RouteAfterGrader(s)) }),
		a.engine.Connect(string(StepRewrite), string(StepRetrieval), nil),
		a.engine.Connect(string(StepWebSearch), string(StepSynthesis), nil),
	}
	return errors.Join(routes...)
}

// Config returns the effective configuration.
func (a *Agent) Config() Config {
	return a.cfg
}

// Stats returns the query accumulator.
func (a *Agent) Stats() *Stats {
	return a.stats
}

// Store returns the step history store.
func (a *Agent) Store() store.Store[State] {
	return a.store
}

// Invoke answers req synchronously. Errors are request validation failures or
// engine errors; collaborator failures surface in Response.Error instead.
func (a *Agent) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	final, err := a.execute(ctx, a.newRun(req))
	if err != nil {
		return Response{}, err
	}
	return NewResponse(final), nil
}

// Stream answers req and reports progress through send: one step event per
// executed step, then metadata, the answer as token chunks, citations when
// there are any and a final done event. If the run fails a single error event
// replaces everything after the step events. An error returned by send
// cancels the run and is returned.
func (a *Agent) Stream(ctx context.Context, req Request, send func(StreamEvent) error) error {
	if err := req.Validate(); err != nil {
		return err
	}
	initial := a.newRun(req)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := a.broker.Subscribe(initial.RunID)
	defer unsubscribe()

	type outcome struct {
		state State
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := a.execute(ctx, initial)
		done <- outcome{state: s, err: err}
	}()

	var sendErr error
	forward := func(ev emit.Event) {
		if sendErr != nil || ev.Msg != emit.MsgNodeStarted {
			return
		}
		step := Step(ev.NodeID)
		if err := send(StreamEvent{Type: EventStep, Step: step, Label: step.Label()}); err != nil {
			sendErr = err
			cancel()
		}
	}

	var result outcome
wait:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			forward(ev)
		case result = <-done:
			break wait
		}
	}
	// The engine emits synchronously, so every event of the run is buffered
	// by the time it returns.
drain:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break drain
			}
			forward(ev)
		default:
			break drain
		}
	}

	if sendErr != nil {
		return sendErr
	}
	if result.err != nil {
		_ = send(StreamEvent{
			Type:    EventError,
			Message: "I encountered an error processing your request. Please try again.",
			Error:   result.err.Error(),
		})
		return result.err
	}
	return a.streamAnswer(result.state, send)
}

func (a *Agent) streamAnswer(s State, send func(StreamEvent) error) error {
	resp := NewResponse(s)
	if err := send(StreamEvent{Type: EventMetadata, Metadata: &StreamMetadata{
		RunID:            resp.RunID,
		Intent:           resp.Intent,
		Confidence:       resp.Confidence,
		Reasoning:        resp.Reasoning,
		ProcessingTimeMS: resp.ProcessingTimeMS,
		RetrievalGrade:   resp.Grade,
		WebSearchUsed:    resp.WebSearchUsed,
		IterationCount:   resp.IterationCount,
	}}); err != nil {
		return err
	}

	tokens := SplitTokens(resp.Response)
	for i, tok := range tokens {
		if err := send(StreamEvent{Type: EventToken, Content: tok, Index: i, Total: len(tokens)}); err != nil {
			return err
		}
	}
	if len(resp.Citations) > 0 {
		if err := send(StreamEvent{Type: EventCitations, Citations: resp.Citations}); err != nil {
			return err
		}
	}
	return send(StreamEvent{Type: EventDone, TotalTokens: len(tokens)})
}

func (a *Agent) newRun(req Request) State {
	s := NewState(req, a.cfg.MaxIterations)
	s.RunID = uuid.NewString()
	return s
}

func (a *Agent) execute(ctx context.Context, initial State) (State, error) {
	runID := initial.RunID
	a.stats.QueryStarted()
	a.tags.set(runID, map[string]interface{}{
		"user_id":    initial.UserID,
		"session_id": initial.SessionID,
	})
	defer a.tags.clear(runID)

	final, err := a.engine.Run(ctx, runID, initial)
	final.Elapsed = time.Since(initial.StartedAt)
	if err != nil {
		a.stats.QueryFailed()
		a.logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
		return final, fmt.Errorf("run %s: %w", runID, err)
	}

	a.stats.QuerySucceeded(final.Intent, final.Elapsed)
	a.logger.Info("query processed",
		zap.String("run_id", runID),
		zap.String("intent", string(final.Intent)),
		zap.Float64("confidence", final.Confidence),
		zap.Int("iterations", final.Iteration),
		zap.Bool("web_search", final.WebResultsUsed),
		zap.Duration("latency", final.Elapsed),
	)
	return final, nil
}

// runTags decorates events with per-run attributes before passing them on.
type runTags struct {
	next emit.Emitter
	mu   sync.RWMutex
	tags map[string]map[string]interface{}
}

func newRunTags(next emit.Emitter) *runTags {
	if next == nil {
		next = emit.NewNullEmitter()
	}
	return &runTags{next: next, tags: make(map[string]map[string]interface{})}
}

func (t *runTags) set(runID string, tags map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags[runID] = tags
}

func (t *runTags) clear(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tags, runID)
}

// Emit implements emit.Emitter.
func (t *runTags) Emit(event emit.Event) {
	t.mu.RLock()
	tags := t.tags[event.RunID]
	t.mu.RUnlock()

	if len(tags) > 0 {
		meta := make(map[string]interface{}, len(event.Meta)+len(tags))
		for k, v := range tags {
			meta[k] = v
		}
		for k, v := range event.Meta {
			meta[k] = v
		}
		event.Meta = meta
	}
	t.next.Emit(event)
}
