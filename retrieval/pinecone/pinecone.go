// Package pinecone searches a Pinecone index over its REST data plane.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph/tool"
	"github.com/dshills/ragflow/rag"
	"github.com/dshills/ragflow/retrieval"
)

// DefaultTextField is the metadata field holding the passage text.
const DefaultTextField = "text"

// Config configures an Index.
type Config struct {
	APIKey string

	// Host is the index data-plane host, e.g.
	// https://docs-abc123.svc.us-east-1.pinecone.io. A bare host gets https.
	Host string

	Namespace string

	// TextField names the metadata field with the passage text.
	TextField string

	// RequestsPerSecond rate-limits queries; 0 disables limiting.
	RequestsPerSecond float64
}

// Index implements rag.VectorSearcher.
type Index struct {
	cfg      Config
	baseURL  string
	http     *tool.HTTPTool
	embedder retrieval.Embedder
	logger   *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithHTTPTool replaces the HTTP transport. The API key header must already
// be set on it.
func WithHTTPTool(h *tool.HTTPTool) Option {
	return func(i *Index) {
		i.http = h
	}
}

// New creates an Index.
func New(cfg Config, embedder retrieval.Embedder, opts ...Option) (*Index, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("pinecone: api key is required")
	}
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, errors.New("pinecone: host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	if embedder == nil {
		return nil, errors.New("pinecone: embedder is required")
	}
	if cfg.TextField == "" {
		cfg.TextField = DefaultTextField
	}

	idx := &Index{
		cfg:      cfg,
		baseURL:  host,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.http == nil {
		httpOpts := []tool.HTTPOption{tool.WithHeader("Api-Key", cfg.APIKey)}
		if cfg.RequestsPerSecond > 0 {
			httpOpts = append(httpOpts, tool.WithRateLimit(cfg.RequestsPerSecond, 1))
		}
		idx.http = tool.NewHTTPTool(httpOpts...)
	}
	idx.logger = idx.logger.With(zap.String("component", "pinecone"))
	return idx, nil
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string                 `json:"id"`
		Score    float64                `json:"score"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"matches"`
}

// Search embeds query and returns the k nearest passages. Pinecone reports
// cosine similarity in [-1,1], which is turned into a distance in [0,2].
func (i *Index) Search(ctx context.Context, query string, k int) ([]rag.Match, error) {
	if k <= 0 {
		return []rag.Match{}, nil
	}
	start := time.Now()

	vec, err := retrieval.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	err = i.http.PostJSON(ctx, i.baseURL+"/query", queryRequest{
		Vector:          vec,
		TopK:            k,
		Namespace:       i.cfg.Namespace,
		IncludeMetadata: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}

	matches := make([]rag.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		meta := retrieval.StringMetadata(m.Metadata)
		text := meta[i.cfg.TextField]
		delete(meta, i.cfg.TextField)
		if text == "" {
			continue
		}
		if _, ok := meta[retrieval.MetaChunkID]; !ok && m.ID != "" {
			if meta == nil {
				meta = make(map[string]string, 1)
			}
			meta[retrieval.MetaChunkID] = m.ID
		}
		matches = append(matches, rag.Match{
			ID:       m.ID,
			Text:     text,
			Distance: 1 - m.Score,
			Metadata: meta,
		})
	}

	i.logger.Debug("query finished",
		zap.Int("matches", len(matches)),
		zap.Duration("latency", time.Since(start)),
	)
	return matches, nil
}

// Ping checks that the index answers, for health reporting.
func (i *Index) Ping(ctx context.Context) error {
	var stats struct {
		TotalVectorCount int `json:"totalVectorCount"`
	}
	if err := i.http.PostJSON(ctx, i.baseURL+"/describe_index_stats", struct{}{}, &stats); err != nil {
		return fmt.Errorf("pinecone describe index stats: %w", err)
	}
	return nil
}
