package graph

import "time"

// NodePolicy holds per-node execution settings.
//
// Policies are attached with Engine.AddWithPolicy. A zero NodePolicy means the
// engine defaults apply.
type NodePolicy struct {
	// Timeout bounds a single execution of the node. It overrides
	// Options.DefaultNodeTimeout when positive.
	Timeout time.Duration
}
