package graph

// Edge is a static transition between two nodes.
//
// Edges with a nil predicate are unconditional. When several edges leave the
// same node, the first one (in registration order) whose predicate matches wins.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate decides whether an edge can be traversed for the given state.
type Predicate[S any] func(state S) bool

// RouteFunc is a pure routing decision: given the state it returns the ID of the
// next node. An empty result means "no decision" and falls through to edges.
//
// RouteFuncs must not perform I/O; they exist so that branching logic stays
// inspectable and testable apart from the nodes that produce state.
type RouteFunc[S any] func(state S) string
