package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// Router classifies the intent of a query.
type Router struct {
	Classifier StructuredCompleter
	Timeout    time.Duration
	Logger     *zap.Logger
}

type classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Run implements graph.Node. Classification failures degrade to the unknown
// intent.
func (r *Router) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(r.Logger, StepRouter)
	start := time.Now()

	cctx, cancel := collaboratorContext(ctx, r.Timeout)
	defer cancel()

	var out classification
	err := r.Classifier.CompleteStructured(cctx, Prompt{
		System: routerSystemPrompt,
		User:   "User Query: " + s.Query,
	}, intentSchema, &out)
	if err != nil {
		logger.Error("intent classification failed", zap.Error(err))
		return graph.NodeResult[Update]{Delta: Update{
			Intent:           ptr(IntentUnknown),
			IntentConfidence: ptr(0.0),
			IntentReasoning:  ptr(""),
			Error:            ptr("Router classification failed: " + err.Error()),
		}}
	}

	intent := ParseIntent(strings.ToLower(strings.TrimSpace(out.Intent)))
	confidence := clamp01(out.Confidence)
	reasoning := strings.TrimSpace(out.Reasoning)

	logger.Info("intent classified",
		zap.String("intent", string(intent)),
		zap.Float64("confidence", confidence),
		zap.Duration("latency", time.Since(start)),
	)

	return graph.NodeResult[Update]{Delta: Update{
		Intent:           ptr(intent),
		IntentConfidence: ptr(confidence),
		IntentReasoning:  ptr(reasoning),
		AppendReasoning: []string{
			fmt.Sprintf("Intent classified as '%s' with %.2f%% confidence. %s", intent, confidence*100, reasoning),
		},
		Error: ptr(""),
	}}
}
