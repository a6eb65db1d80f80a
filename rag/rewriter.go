package rag

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// Rewriter reformulates the query for another retrieval attempt. Every run
// advances the iteration counter, whether or not the rewrite succeeded.
type Rewriter struct {
	Completer TextCompleter
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Run implements graph.Node.
func (r *Rewriter) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(r.Logger, StepRewrite).With(zap.Int("iteration", s.Iteration+1))
	current := s.SearchQuery()

	cctx, cancel := collaboratorContext(ctx, r.Timeout)
	defer cancel()

	reply, err := r.Completer.Complete(cctx, Prompt{
		System: rewriterSystemPrompt,
		User:   "Original Query: " + current + "\n\nRewritten Query:",
	})
	rewritten := strings.TrimSpace(reply)
	if err == nil && rewritten == "" {
		err = errEmptyRewrite
	}
	if err != nil {
		logger.Error("query rewrite failed", zap.Error(err))
		return graph.NodeResult[Update]{Delta: Update{
			IncrementIteration: true,
			Error:              ptr("Query rewrite failed: " + err.Error()),
		}}
	}

	logger.Info("query rewritten", zap.String("from", current), zap.String("to", rewritten))
	return graph.NodeResult[Update]{Delta: Update{
		RewrittenQuery:     ptr(rewritten),
		IncrementIteration: true,
		AppendReasoning:    []string{"[Rewriter] Query transformed for better retrieval."},
	}}
}
