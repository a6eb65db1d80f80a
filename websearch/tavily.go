// Package websearch provides the web search providers used by the agent's
// fallback step, plus a redis-backed result cache that wraps any of them.
package websearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/ragflow/graph/tool"
	"github.com/dshills/ragflow/rag"
)

// TavilyEndpoint is the Tavily search API.
const TavilyEndpoint = "https://api.tavily.com/search"

// Tavily searches with the Tavily API.
type Tavily struct {
	http     *tool.HTTPTool
	endpoint string
}

// TavilyOption configures a Tavily provider.
type TavilyOption func(*Tavily)

// WithTavilyEndpoint overrides the API endpoint.
func WithTavilyEndpoint(endpoint string) TavilyOption {
	return func(t *Tavily) {
		t.endpoint = endpoint
	}
}

// NewTavily creates a Tavily provider. Extra HTTP options are applied after
// the authorization header.
func NewTavily(apiKey string, httpOpts []tool.HTTPOption, opts ...TavilyOption) (*Tavily, error) {
	if apiKey == "" {
		return nil, errors.New("tavily: api key is required")
	}
	httpOpts = append([]tool.HTTPOption{tool.WithHeader("Authorization", "Bearer "+apiKey)}, httpOpts...)
	t := &Tavily{
		http:     tool.NewHTTPTool(httpOpts...),
		endpoint: TavilyEndpoint,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name implements rag.WebSearcher.
func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements rag.WebSearcher.
func (t *Tavily) Search(ctx context.Context, query string, max int) ([]rag.WebResult, error) {
	var resp tavilyResponse
	err := t.http.PostJSON(ctx, t.endpoint, tavilyRequest{
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  max,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	results := make([]rag.WebResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, rag.WebResult{Title: r.Title, Snippet: r.Content, URL: r.URL})
		if max > 0 && len(results) == max {
			break
		}
	}
	return results, nil
}
