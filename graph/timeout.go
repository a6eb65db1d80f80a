package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// getNodeTimeout resolves the effective timeout for a node.
//
// Priority: NodePolicy.Timeout, then the engine default, then no timeout.
func getNodeTimeout(policy NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout runs node under the resolved timeout.
//
// The node receives a derived context; when that context's deadline passes the
// node is expected to return promptly. If the deadline was hit, a NODE_TIMEOUT
// EngineError is returned alongside whatever result the node produced.
func executeNodeWithTimeout[S, U any](
	ctx context.Context,
	node Node[S, U],
	nodeID string,
	state S,
	policy NodePolicy,
	defaultTimeout time.Duration,
) (NodeResult[U], error) {
	timeout := getNodeTimeout(policy, defaultTimeout)
	if timeout == 0 {
		return node.Run(ctx, state), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)

	// A cancelled parent is reported by the caller's boundary check, not as a timeout.
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    CodeNodeTimeout,
		}
	}

	return result, nil
}
