package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// MaxWebResults caps the results added by the web fallback.
const MaxWebResults = 5

// WebSearchFallback supplements the evidence with web results once the
// rewrite budget is spent. Preferred is tried first; Fallback is used when
// Preferred is absent, fails or finds nothing.
type WebSearchFallback struct {
	Preferred WebSearcher
	Fallback  WebSearcher
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Run implements graph.Node. The web results flag is set even when nothing
// was found.
func (w *WebSearchFallback) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(w.Logger, StepWebSearch)
	query := s.SearchQuery()

	var results []WebResult
	if w.Preferred != nil {
		found, err := w.search(ctx, w.Preferred, query)
		if err != nil {
			logger.Warn("preferred web search failed", zap.String("provider", w.Preferred.Name()), zap.Error(err))
		}
		results = found
	}
	if len(results) == 0 && w.Fallback != nil {
		found, err := w.search(ctx, w.Fallback, query)
		if err != nil {
			logger.Error("fallback web search failed", zap.String("provider", w.Fallback.Name()), zap.Error(err))
		}
		results = found
	}
	if w.Preferred == nil && w.Fallback == nil {
		logger.Warn("web search skipped", zap.Error(errNoWebProvider))
	}

	results = normalizeWebResults(results)

	evidence := make([]Passage, 0, len(s.Evidence)+len(results))
	evidence = append(evidence, s.Evidence...)
	for _, r := range results {
		evidence = append(evidence, Passage{
			Text:     fmt.Sprintf("[Web Source: %s]\n%s\nURL: %s", r.Title, r.Snippet, r.URL),
			Metadata: map[string]string{"title": r.Title, "url": r.URL},
			Origin:   OriginWeb,
		})
	}

	logger.Info("web search finished", zap.Int("results", len(results)))

	return graph.NodeResult[Update]{Delta: Update{
		WebResultsUsed:  ptr(true),
		WebResults:      &results,
		Evidence:        &evidence,
		AppendReasoning: []string{fmt.Sprintf("[Web Search] Found %d web results to supplement knowledge base.", len(results))},
	}}
}

func (w *WebSearchFallback) search(ctx context.Context, provider WebSearcher, query string) ([]WebResult, error) {
	cctx, cancel := collaboratorContext(ctx, w.Timeout)
	defer cancel()
	return provider.Search(cctx, query, MaxWebResults)
}

// normalizeWebResults trims fields, drops hits with no content and caps the
// list at MaxWebResults.
func normalizeWebResults(in []WebResult) []WebResult {
	out := make([]WebResult, 0, MaxWebResults)
	for _, r := range in {
		r.Title = strings.TrimSpace(r.Title)
		r.Snippet = strings.TrimSpace(r.Snippet)
		r.URL = strings.TrimSpace(r.URL)
		if r.Title == "" && r.Snippet == "" && r.URL == "" {
			continue
		}
		out = append(out, r)
		if len(out) == MaxWebResults {
			break
		}
	}
	return out
}
