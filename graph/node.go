package graph

import "context"

// Node represents a processing unit in the workflow graph.
//
// A node receives the current state of type S, performs its computation and
// returns a partial update of type U. The engine merges the update into the
// authoritative state with the configured Reducer; nodes never mutate the state
// they are handed.
//
// Type parameters:
//   - S is the state record shared across the workflow.
//   - U is the partial-update type produced by nodes.
type Node[S, U any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[U]
}

// NodeResult represents the output of a node execution.
type NodeResult[U any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged with the current state using the configured reducer.
	Delta U

	// Route optionally overrides graph routing. Use Stop() for terminal nodes
	// or Goto(id) for an explicit hop. A zero Route defers to the routing table.
	Route Next

	// Err aborts the run. Nodes that can degrade gracefully should encode the
	// failure in Delta instead.
	Err error
}

// Next specifies what happens after a node completes.
type Next struct {
	// To names the next node to execute.
	To string

	// Terminal stops the workflow after the delta is merged.
	Terminal bool
}

// Stop returns a Next that ends the workflow.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to nodeID.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	greet := NodeFunc[State, Update](func(ctx context.Context, s State) NodeResult[Update] {
//	    answer := "hello " + s.Name
//	    return NodeResult[Update]{Delta: Update{Answer: &answer}, Route: Stop()}
//	})
type NodeFunc[S, U any] func(ctx context.Context, state S) NodeResult[U]

// Run implements Node.
func (f NodeFunc[S, U]) Run(ctx context.Context, state S) NodeResult[U] {
	return f(ctx, state)
}

// NodeError describes a failure raised by a node.
type NodeError struct {
	// Message is a human-readable description.
	Message string

	// Code is an optional machine-readable code.
	Code string

	// NodeID identifies the failing node.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause so errors.Is and errors.As work.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
