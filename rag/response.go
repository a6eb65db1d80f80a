package rag

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Response is the synchronous answer to a Request.
type Response struct {
	Response         string     `json:"response"`
	Intent           Intent     `json:"intent"`
	Confidence       float64    `json:"confidence"`
	Citations        []Citation `json:"citations"`
	Reasoning        string     `json:"reasoning"`
	ProcessingTimeMS float64    `json:"processing_time_ms"`
	Error            *string    `json:"error"`

	RunID          string `json:"run_id"`
	Grade          Grade  `json:"retrieval_grade,omitempty"`
	WebSearchUsed  bool   `json:"web_search_used"`
	IterationCount int    `json:"iteration_count"`
}

// NewResponse builds the caller-facing view of a finished run.
func NewResponse(s State) Response {
	r := Response{
		Response:         s.Answer,
		Intent:           s.Intent,
		Confidence:       s.Confidence,
		Citations:        s.Citations,
		Reasoning:        strings.Join(s.Reasoning, "\n"),
		ProcessingTimeMS: float64(s.Elapsed.Microseconds()) / 1000,
		RunID:            s.RunID,
		Grade:            s.Grade,
		WebSearchUsed:    s.WebResultsUsed,
		IterationCount:   s.Iteration,
	}
	if r.Citations == nil {
		r.Citations = []Citation{}
	}
	if s.Error != "" {
		r.Error = ptr(s.Error)
	}
	return r
}

// EventType discriminates stream events.
type EventType string

// Stream event types, in emission order.
const (
	EventStep      EventType = "step"
	EventMetadata  EventType = "metadata"
	EventToken     EventType = "token"
	EventCitations EventType = "citations"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// StreamEvent is one message of a streamed answer. Which fields are set
// depends on Type.
type StreamEvent struct {
	Type EventType

	// step
	Step  Step
	Label string

	// metadata
	Metadata *StreamMetadata

	// token
	Content string
	Index   int
	Total   int

	// citations
	Citations []Citation

	// done
	TotalTokens int

	// error
	Message string
	Error   string
}

// StreamMetadata summarizes a finished run before its answer is streamed.
type StreamMetadata struct {
	RunID            string  `json:"run_id"`
	Intent           Intent  `json:"intent"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
	RetrievalGrade   Grade   `json:"retrieval_grade"`
	WebSearchUsed    bool    `json:"web_search_used"`
	IterationCount   int     `json:"iteration_count"`
}

// MarshalJSON encodes the event as a flat object keyed by type.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": e.Type}
	switch e.Type {
	case EventStep:
		out["step"] = e.Step
		out["label"] = e.Label
	case EventMetadata:
		if e.Metadata != nil {
			m := e.Metadata
			out["run_id"] = m.RunID
			out["intent"] = m.Intent
			out["confidence"] = m.Confidence
			out["reasoning"] = m.Reasoning
			out["processing_time_ms"] = m.ProcessingTimeMS
			out["retrieval_grade"] = m.RetrievalGrade
			out["web_search_used"] = m.WebSearchUsed
			out["iteration_count"] = m.IterationCount
		}
	case EventToken:
		out["content"] = e.Content
		out["index"] = e.Index
		out["total"] = e.Total
	case EventCitations:
		out["citations"] = e.Citations
	case EventDone:
		out["total_tokens"] = e.TotalTokens
	case EventError:
		out["message"] = e.Message
		if e.Error != "" {
			out["error"] = e.Error
		}
	}
	return json.Marshal(out)
}

// SplitTokens cuts text into word chunks, each carrying the whitespace that
// follows it. Concatenating the chunks yields text unchanged.
func SplitTokens(text string) []string {
	var chunks []string
	start := 0
	seenWord, inSpace := false, false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if seenWord && inSpace {
			chunks = append(chunks, text[start:i])
			start = i
		}
		seenWord, inSpace = true, false
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
