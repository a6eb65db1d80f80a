package graph

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dshills/ragflow/graph/emit"
	"github.com/dshills/ragflow/graph/store"
)

// Engine orchestrates stateful workflow execution.
//
// The Engine is the runtime that:
//   - Manages workflow graph topology (nodes, edges and routing functions)
//   - Executes one node at a time, starting at the start node
//   - Merges each node's partial update via the reducer
//   - Persists state after each step via the store
//   - Emits observability events via the emitter
//   - Enforces execution limits (MaxSteps, node timeouts, run budget)
//
// Type parameters: S is the state record, U the partial update nodes return.
//
// Example:
//
//	engine := graph.New(reduce, store.NewMemStore[State](100), emitter,
//	    graph.WithMaxSteps(25),
//	    graph.WithDefaultNodeTimeout(2*time.Minute),
//	)
//	_ = engine.Add("route", routeNode)
//	_ = engine.Add("answer", answerNode)
//	_ = engine.StartAt("route")
//	_ = engine.Branch("route", func(s State) string { return "answer" })
//
//	final, err := engine.Run(ctx, "run-001", State{Query: "hello"})
type Engine[S, U any] struct {
	mu sync.RWMutex

	// reducer merges partial state updates deterministically
	reducer Reducer[S, U]

	// nodes maps node IDs to Node implementations
	nodes map[string]Node[S, U]

	// policies holds per-node execution settings
	policies map[string]NodePolicy

	// edges defines conditional transitions between nodes
	edges []Edge[S]

	// routes holds routing functions keyed by source node
	routes map[string]RouteFunc[S]

	// startNode is the entry point for workflow execution
	startNode string

	// store persists workflow state after each step
	store store.Store[S]

	// emitter receives observability events
	emitter emit.Emitter

	// opts contains execution configuration
	opts Options

	// optErr is the first error returned by an Option passed to New
	optErr error
}

// New creates an Engine.
//
// The reducer and store are required for Run; the emitter may be nil. Options
// are applied in order and the first failing option is reported by Run, so
// construction itself never fails.
func New[S, U any](reducer Reducer[S, U], st store.Store[S], emitter emit.Emitter, options ...Option) *Engine[S, U] {
	cfg := &engineConfig{}
	var optErr error
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil && optErr == nil {
			optErr = &EngineError{Message: err.Error(), Code: CodeInvalidOption}
		}
	}

	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine[S, U]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S, U]),
		policies: make(map[string]NodePolicy),
		routes:   make(map[string]RouteFunc[S]),
		store:    st,
		emitter:  emitter,
		opts:     cfg.opts,
		optErr:   optErr,
	}
}

// Add registers a node in the workflow graph.
//
// Node IDs must be unique and non-empty.
func (e *Engine[S, U]) Add(nodeID string, node Node[S, U]) error {
	return e.AddWithPolicy(nodeID, node, NodePolicy{})
}

// AddWithPolicy registers a node with its own execution policy.
func (e *Engine[S, U]) AddWithPolicy(nodeID string, node Node[S, U], policy NodePolicy) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{
			Message: "duplicate node ID: " + nodeID,
			Code:    CodeDuplicateNode,
		}
	}

	e.nodes[nodeID] = node
	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the entry point for workflow execution. The node must already
// be registered.
func (e *Engine[S, U]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + nodeID,
			Code:    CodeNodeNotFound,
		}
	}

	e.startNode = nodeID
	return nil
}

// Connect creates an edge between two nodes.
//
// A nil predicate makes the edge unconditional. Node existence is checked
// lazily at Run time so the graph can be built in any order.
//
// Example:
//
//	engine.Connect("retrieve", "grade", nil)
//	engine.Connect("grade", "synthesize", func(s State) bool {
//	    return s.Grade == "relevant"
//	})
func (e *Engine[S, U]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Branch attaches a routing function to a node. It is consulted after the
// node's own Route and before edges. Registering a second function for the
// same node replaces the first.
func (e *Engine[S, U]) Branch(from string, route RouteFunc[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if route == nil {
		return &EngineError{Message: "route function cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.routes[from] = route
	return nil
}

// Nodes returns the registered node IDs in sorted order.
func (e *Engine[S, U]) Nodes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run executes the workflow from the start node until a node stops the run or
// an error occurs.
//
// After each node the update is merged, the state is saved to the store and a
// "node completed" event is emitted. The next node is chosen by, in order:
// the node's Route, the routing function registered with Branch, and the
// first matching edge. No match is a NO_ROUTE error.
//
// Run always returns the last merged state, including on error, so callers can
// inspect how far the run got.
func (e *Engine[S, U]) Run(ctx context.Context, runID string, initial S) (S, error) {
	if err := e.validate(); err != nil {
		return initial, err
	}

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	metrics := e.opts.Metrics
	runStart := time.Now()
	metrics.RunStarted()

	current := initial
	currentNode := e.startNode
	step := 0

	fail := func(err error, status string) (S, error) {
		metrics.RunFinished(time.Since(runStart), status)
		e.emitter.Emit(emit.Event{
			RunID:  runID,
			Step:   step,
			NodeID: currentNode,
			Msg:    emit.MsgRunFailed,
			Meta:   map[string]interface{}{"error": err.Error()},
		})
		return current, err
	}

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return fail(&EngineError{
				Message: "workflow exceeded MaxSteps limit",
				Code:    CodeMaxStepsExceeded,
			}, "max_steps")
		}

		select {
		case <-ctx.Done():
			return fail(ctx.Err(), "cancelled")
		default:
		}

		e.mu.RLock()
		node, exists := e.nodes[currentNode]
		policy := e.policies[currentNode]
		e.mu.RUnlock()

		if !exists {
			return fail(&EngineError{
				Message: "node not found during execution: " + currentNode,
				Code:    CodeNodeNotFound,
			}, "error")
		}

		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: currentNode, Msg: emit.MsgNodeStarted})

		nodeStart := time.Now()
		result, err := executeNodeWithTimeout(ctx, node, currentNode, current, policy, e.opts.DefaultNodeTimeout)
		latency := time.Since(nodeStart)

		if err == nil {
			err = result.Err
		}
		if err != nil {
			status := "error"
			if IsCode(err, CodeNodeTimeout) {
				status = "timeout"
			}
			metrics.RecordStep(currentNode, latency, status)
			e.emitter.Emit(emit.Event{
				RunID:  runID,
				Step:   step,
				NodeID: currentNode,
				Msg:    emit.MsgNodeFailed,
				Meta: map[string]interface{}{
					"error":      err.Error(),
					"latency_ms": latency.Milliseconds(),
				},
			})
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return fail(err, "cancelled")
			}
			return fail(err, "error")
		}

		metrics.RecordStep(currentNode, latency, "success")
		current = e.reducer(current, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, current); err != nil {
			return fail(&EngineError{
				Message: "failed to save step: " + err.Error(),
				Code:    CodeStoreError,
			}, "error")
		}

		e.emitter.Emit(emit.Event{
			RunID:  runID,
			Step:   step,
			NodeID: currentNode,
			Msg:    emit.MsgNodeCompleted,
			Meta:   map[string]interface{}{"latency_ms": latency.Milliseconds()},
		})

		if result.Route.Terminal {
			metrics.RunFinished(time.Since(runStart), "success")
			e.emitter.Emit(emit.Event{
				RunID:  runID,
				Step:   step,
				NodeID: currentNode,
				Msg:    emit.MsgRunCompleted,
				Meta:   map[string]interface{}{"latency_ms": time.Since(runStart).Milliseconds()},
			})
			return current, nil
		}

		next := e.nextNode(currentNode, result.Route, current)
		if next == "" {
			return fail(&EngineError{
				Message: "no valid route from node: " + currentNode,
				Code:    CodeNoRoute,
			}, "error")
		}
		currentNode = next
	}
}

func (e *Engine[S, U]) validate() error {
	if e.optErr != nil {
		return e.optErr
	}
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeMissingStore}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.startNode == "" {
		return &EngineError{
			Message: "start node not set (call StartAt before Run)",
			Code:    CodeNoStartNode,
		}
	}
	if _, exists := e.nodes[e.startNode]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + e.startNode,
			Code:    CodeNodeNotFound,
		}
	}
	return nil
}

// nextNode resolves the successor of from. Empty means no route.
func (e *Engine[S, U]) nextNode(from string, route Next, state S) string {
	if route.To != "" {
		return route.To
	}

	e.mu.RLock()
	routeFn := e.routes[from]
	e.mu.RUnlock()

	if routeFn != nil {
		if next := routeFn(state); next != "" {
			return next
		}
	}
	return e.evaluateEdges(from, state)
}

// evaluateEdges returns the target of the first edge leaving fromNode whose
// predicate matches, or "" when none does.
func (e *Engine[S, U]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}
