// Package retrieval holds what the vector search backends share.
//
// Backends live in subpackages (pinecone, pgvector) and implement
// rag.VectorSearcher. Both embed the query with an Embedder and report
// cosine distances in [0,2].
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// ErrEmptyEmbedding is returned when the embedder produced no vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// EmbedQuery embeds query and rejects empty vectors.
func EmbedQuery(ctx context.Context, e Embedder, query string) ([]float32, error) {
	vec, err := e.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}

// Metadata keys with a fixed meaning across backends.
const (
	MetaSource  = "source"
	MetaChunkID = "chunk_id"
)

// StringMetadata flattens loosely typed metadata into strings. Nil values are
// dropped; numbers keep their shortest form.
func StringMetadata(in map[string]interface{}) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
