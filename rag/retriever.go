package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// Retrieval defaults.
const (
	DefaultRetrievalK          = 5
	DefaultSimilarityThreshold = 0.65
)

// Retriever searches the vector index and decides whether the best match is
// good enough to answer from.
type Retriever struct {
	Searcher  VectorSearcher
	K         int
	Threshold float64
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Run implements graph.Node. Search failures decline the query.
func (r *Retriever) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(r.Logger, StepRetrieval)
	start := time.Now()

	k := r.K
	if k <= 0 {
		k = DefaultRetrievalK
	}

	cctx, cancel := collaboratorContext(ctx, r.Timeout)
	defer cancel()

	matches, err := r.Searcher.Search(cctx, s.SearchQuery(), k)
	if err != nil {
		logger.Error("vector search failed", zap.Error(err))
		return graph.NodeResult[Update]{Delta: Update{
			Evidence:      ptr([]Passage{}),
			Confidence:    ptr(0.0),
			ShouldDecline: ptr(true),
			DeclineReason: ptr("Error during retrieval: " + err.Error()),
			Answer:        ptr(DeclineMessage),
			Error:         ptr("Retrieval failed: " + err.Error()),
		}}
	}

	evidence := make([]Passage, 0, len(matches))
	best := 0.0
	for _, m := range matches {
		score := m.Similarity()
		if score > best {
			best = score
		}
		evidence = append(evidence, Passage{
			Text:     m.Text,
			Score:    ptr(score),
			Metadata: copyMetadata(m.Metadata),
			Origin:   OriginVector,
		})
	}

	logger.Info("retrieved passages",
		zap.Int("count", len(evidence)),
		zap.Float64("best_similarity", best),
		zap.Duration("latency", time.Since(start)),
	)

	if best < r.Threshold {
		logger.Warn("confidence below threshold, declining",
			zap.Float64("confidence", best),
			zap.Float64("threshold", r.Threshold),
		)
		reason := fmt.Sprintf("Confidence score (%.2f%%) is below threshold (%.2f%%). "+
			"The knowledge base doesn't contain sufficiently relevant information to answer this query safely.",
			best*100, r.Threshold*100)
		return graph.NodeResult[Update]{Delta: Update{
			Evidence:      &evidence,
			Confidence:    ptr(best),
			ShouldDecline: ptr(true),
			DeclineReason: ptr(reason),
			Answer:        ptr(DeclineMessage),
		}}
	}

	return graph.NodeResult[Update]{Delta: Update{
		Evidence:      &evidence,
		Confidence:    ptr(best),
		ShouldDecline: ptr(false),
		DeclineReason: ptr(""),
		Answer:        ptr(""),
		Error:         ptr(""),
	}}
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
