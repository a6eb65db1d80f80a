// Package rag implements a corrective retrieval-augmented generation agent
// on top of the graph engine.
//
// A query flows through seven steps: the router classifies intent, the
// retriever searches the vector index, the graph enricher adds knowledge
// graph context, the grader judges relevance, the rewriter reformulates
// poorly served queries, the web search fallback supplements evidence once
// rewrites are exhausted and the synthesizer writes the grounded answer.
// Steps never fail a run on collaborator errors; they record a degraded
// update and let routing carry on.
package rag

// Intent is the router's classification of a query.
type Intent string

// Intents understood by the router.
const (
	IntentKnowledgeSearch Intent = "knowledge_search"
	IntentCalculation     Intent = "calculation"
	IntentAPILookup       Intent = "api_lookup"
	IntentGreeting        Intent = "greeting"
	IntentUnknown         Intent = "unknown"
)

// Intents lists every intent in taxonomy order.
var Intents = []Intent{
	IntentKnowledgeSearch,
	IntentCalculation,
	IntentAPILookup,
	IntentGreeting,
	IntentUnknown,
}

// ParseIntent normalizes a classifier label. Unrecognized labels map to
// IntentUnknown.
func ParseIntent(label string) Intent {
	for _, in := range Intents {
		if string(in) == label {
			return in
		}
	}
	return IntentUnknown
}

// Grade is the grader's relevance verdict.
type Grade string

// Grades.
const (
	GradeRelevant    Grade = "relevant"
	GradeNotRelevant Grade = "not_relevant"
)

// Origin tells where a passage came from.
type Origin string

// Passage origins.
const (
	OriginVector Origin = "vector"
	OriginGraph  Origin = "graph"
	OriginWeb    Origin = "web"
)

// Passage is one piece of evidence.
type Passage struct {
	Text string `json:"text"`

	// Score is the similarity in [0,1]. Graph and web passages carry no score.
	Score *float64 `json:"score,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
	Origin   Origin            `json:"origin"`
}

// Relationship is an outgoing edge of a knowledge graph entity.
type Relationship struct {
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// Entity is a knowledge graph node related to a query.
type Entity struct {
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Relationships []Relationship `json:"relationships,omitempty"`

	// Sources names the documents the entity was extracted from.
	Sources []string `json:"sources,omitempty"`
}

// WebResult is a normalized web search hit.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Citation attributes part of an answer to a passage.
type Citation struct {
	Source          string  `json:"source"`
	ContentPreview  string  `json:"content_preview"`
	SimilarityScore float64 `json:"similarity_score"`
	ChunkID         string  `json:"chunk_id"`
}

// Calculation is a precomputed result the synthesizer can present.
type Calculation struct {
	Result string   `json:"result"`
	Steps  []string `json:"steps,omitempty"`
}
