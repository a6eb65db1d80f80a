package rag

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxQueryLength is the longest accepted query, in characters.
const MaxQueryLength = 2000

// DefaultMaxIterations bounds the rewrite loop when none is configured.
const DefaultMaxIterations = 3

// Request validation errors.
var (
	ErrEmptyQuery    = errors.New("query must not be empty")
	ErrQueryTooLong  = fmt.Errorf("query must be at most %d characters", MaxQueryLength)
	errEmptyRewrite  = errors.New("rewriter returned an empty query")
	errNoWebProvider = errors.New("no web search provider configured")
)

// Request is a single user question.
type Request struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks the query length.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if utf8.RuneCountInString(r.Query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	return nil
}

// State is the record threaded through one run.
//
// Only the engine writes to it, by merging each step's Update with Reduce.
type State struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`

	Intent           Intent  `json:"intent"`
	IntentConfidence float64 `json:"intent_confidence"`
	IntentReasoning  string  `json:"intent_reasoning"`

	Evidence   []Passage `json:"evidence,omitempty"`
	Confidence float64   `json:"confidence"`

	GraphEntities []Entity `json:"graph_entities,omitempty"`

	Grade          Grade  `json:"grade,omitempty"`
	GradeReasoning string `json:"grade_reasoning,omitempty"`
	ShouldRewrite  bool   `json:"should_rewrite"`

	RewrittenQuery string `json:"rewritten_query,omitempty"`
	Iteration      int    `json:"iteration"`
	MaxIterations  int    `json:"max_iterations"`

	WebResultsUsed bool        `json:"web_results_used"`
	WebResults     []WebResult `json:"web_results,omitempty"`

	Calculation *Calculation `json:"calculation,omitempty"`

	Answer        string     `json:"answer"`
	Citations     []Citation `json:"citations,omitempty"`
	ShouldDecline bool       `json:"should_decline"`
	DeclineReason string     `json:"decline_reason,omitempty"`

	Reasoning []string      `json:"reasoning,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SearchQuery is the text retrieval and web search should use: the rewritten
// query when there is one, else the original.
func (s State) SearchQuery() string {
	if s.RewrittenQuery != "" {
		return s.RewrittenQuery
	}
	return s.Query
}

// NewState creates the initial record for req. Missing user and session IDs
// get defaults; maxIterations <= 0 means DefaultMaxIterations.
func NewState(req Request, maxIterations int) State {
	now := time.Now()
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	userID := req.UserID
	if userID == "" {
		userID = "default"
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", now.Unix())
	}
	return State{
		Query:         req.Query,
		UserID:        userID,
		SessionID:     sessionID,
		Intent:        IntentUnknown,
		MaxIterations: maxIterations,
		StartedAt:     now,
	}
}

// Update is a partial change to State. Nil fields leave the state untouched.
type Update struct {
	Intent           *Intent
	IntentConfidence *float64
	IntentReasoning  *string

	// Evidence, when non-nil, replaces the evidence list.
	Evidence   *[]Passage
	Confidence *float64

	GraphEntities *[]Entity

	Grade          *Grade
	GradeReasoning *string
	ShouldRewrite  *bool

	RewrittenQuery *string

	// IncrementIteration adds one to the iteration counter.
	IncrementIteration bool

	WebResultsUsed *bool
	WebResults     *[]WebResult

	Answer        *string
	Citations     *[]Citation
	ShouldDecline *bool
	DeclineReason *string

	// AppendReasoning lines are added to the end of the trace.
	AppendReasoning []string
	Error           *string
}

// Reduce merges delta into prev. It is the engine's reducer for State.
func Reduce(prev State, delta Update) State {
	if delta.Intent != nil {
		prev.Intent = *delta.Intent
	}
	if delta.IntentConfidence != nil {
		prev.IntentConfidence = *delta.IntentConfidence
	}
	if delta.IntentReasoning != nil {
		prev.IntentReasoning = *delta.IntentReasoning
	}
	if delta.Evidence != nil {
		prev.Evidence = append([]Passage(nil), (*delta.Evidence)...)
	}
	if delta.Confidence != nil {
		prev.Confidence = *delta.Confidence
	}
	if delta.GraphEntities != nil {
		prev.GraphEntities = append([]Entity(nil), (*delta.GraphEntities)...)
	}
	if delta.Grade != nil {
		prev.Grade = *delta.Grade
	}
	if delta.GradeReasoning != nil {
		prev.GradeReasoning = *delta.GradeReasoning
	}
	if delta.ShouldRewrite != nil {
		prev.ShouldRewrite = *delta.ShouldRewrite
	}
	if delta.RewrittenQuery != nil {
		prev.RewrittenQuery = *delta.RewrittenQuery
	}
	if delta.IncrementIteration {
		prev.Iteration++
	}
	// The fallback flag latches: once set it is never cleared.
	if delta.WebResultsUsed != nil && *delta.WebResultsUsed {
		prev.WebResultsUsed = true
	}
	if delta.WebResults != nil {
		prev.WebResults = append([]WebResult(nil), (*delta.WebResults)...)
	}
	if delta.Answer != nil {
		prev.Answer = *delta.Answer
	}
	if delta.Citations != nil {
		prev.Citations = append([]Citation(nil), (*delta.Citations)...)
	}
	if delta.ShouldDecline != nil {
		prev.ShouldDecline = *delta.ShouldDecline
	}
	if delta.DeclineReason != nil {
		prev.DeclineReason = *delta.DeclineReason
	}
	if len(delta.AppendReasoning) > 0 {
		reasoning := make([]string, 0, len(prev.Reasoning)+len(delta.AppendReasoning))
		reasoning = append(reasoning, prev.Reasoning...)
		prev.Reasoning = append(reasoning, delta.AppendReasoning...)
	}
	if delta.Error != nil {
		prev.Error = *delta.Error
	}
	return prev
}

func ptr[T any](v T) *T {
	return &v
}
