package rag

import (
	"context"
	"errors"
	"math"
)

// Prompt is a two-part instruction for a completion collaborator.
type Prompt struct {
	System string
	User   string
}

// Schema is a JSON schema describing a structured completion.
type Schema map[string]interface{}

// TextCompleter returns free text for a prompt.
type TextCompleter interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// StructuredCompleter fills out with a JSON reply conforming to schema.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, prompt Prompt, schema Schema, out interface{}) error
}

// Match is one vector search hit.
type Match struct {
	ID   string
	Text string

	// Distance is the cosine distance in [0,2]; 0 means identical.
	Distance float64

	Metadata map[string]string
}

// Similarity maps the distance onto [0,1]. A NaN or infinite distance,
// as pgvector returns for zero vectors, scores 0.
func (m Match) Similarity() float64 {
	return similarity(m.Distance)
}

func similarity(distance float64) float64 {
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0
	}
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// VectorSearcher returns the k nearest passages for a query.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int) ([]Match, error)
}

// Availability is the outcome class of a knowledge graph lookup.
type Availability int

// Graph lookup outcomes.
const (
	// GraphUnavailable means no graph is configured or it could not be reached.
	GraphUnavailable Availability = iota
	// GraphEmpty means the graph answered but knew nothing related.
	GraphEmpty
	// GraphFound means related entities were returned.
	GraphFound
)

// String implements fmt.Stringer.
func (a Availability) String() string {
	switch a {
	case GraphEmpty:
		return "empty"
	case GraphFound:
		return "found"
	default:
		return "unavailable"
	}
}

// GraphResult is the answer of a knowledge graph lookup. Err is informational;
// callers branch on Availability.
type GraphResult struct {
	Availability Availability
	Entities     []Entity
	Err          error
}

// GraphQuerier finds entities related to a query.
type GraphQuerier interface {
	Related(ctx context.Context, query string, limit int) GraphResult
}

// WebSearcher is a web search provider.
type WebSearcher interface {
	Name() string
	Search(ctx context.Context, query string, max int) ([]WebResult, error)
}

// ErrMalformedOutput wraps structured replies that could not be decoded.
var ErrMalformedOutput = errors.New("malformed structured output")
