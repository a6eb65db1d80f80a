package rag

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"Hello", []string{"Hello"}},
		{"Hello world", []string{"Hello ", "world"}},
		{"Line one\n\n- item  two ", []string{"Line ", "one\n\n", "- ", "item  ", "two "}},
		{"  leading", []string{"  leading"}},
	}
	for _, tt := range tests {
		got := SplitTokens(tt.text)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitTokens(%q) = %q, want %q", tt.text, got, tt.want)
		}
		if strings.Join(got, "") != tt.text {
			t.Errorf("SplitTokens(%q) does not reassemble", tt.text)
		}
	}
}

func TestNewResponse(t *testing.T) {
	s := State{
		RunID:          "run-1",
		Answer:         "answer",
		Intent:         IntentKnowledgeSearch,
		Confidence:     0.8,
		Reasoning:      []string{"a", "b"},
		Elapsed:        1500 * time.Microsecond,
		Grade:          GradeRelevant,
		WebResultsUsed: true,
		Iteration:      2,
	}
	r := NewResponse(s)
	if r.Response != "answer" || r.Reasoning != "a\nb" || r.ProcessingTimeMS != 1.5 {
		t.Errorf("response = %+v", r)
	}
	if r.Error != nil {
		t.Errorf("Error = %v, want nil", *r.Error)
	}
	if r.Citations == nil {
		t.Error("Citations must encode as an empty list")
	}
	if !r.WebSearchUsed || r.IterationCount != 2 || r.RunID != "run-1" {
		t.Errorf("response = %+v", r)
	}

	s.Error = "Synthesis failed: x"
	if r := NewResponse(s); r.Error == nil || *r.Error != "Synthesis failed: x" {
		t.Errorf("Error = %v", r.Error)
	}
}

func TestStreamEvent_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		event StreamEvent
		want  map[string]interface{}
	}{
		{"step", StreamEvent{Type: EventStep, Step: StepRouter, Label: "Classifying intent..."},
			map[string]interface{}{"type": "step", "step": "router", "label": "Classifying intent..."}},
		{"token", StreamEvent{Type: EventToken, Content: "Hello ", Index: 0, Total: 2},
			map[string]interface{}{"type": "token", "content": "Hello ", "index": float64(0), "total": float64(2)}},
		{"done", StreamEvent{Type: EventDone, TotalTokens: 2},
			map[string]interface{}{"type": "done", "total_tokens": float64(2)}},
		{"error", StreamEvent{Type: EventError, Message: "sorry"},
			map[string]interface{}{"type": "error", "message": "sorry"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got map[string]interface{}
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}

	t.Run("metadata", func(t *testing.T) {
		data, _ := json.Marshal(StreamEvent{Type: EventMetadata, Metadata: &StreamMetadata{
			Intent: IntentGreeting, Confidence: 0.9, WebSearchUsed: true, IterationCount: 1,
		}})
		var got map[string]interface{}
		_ = json.Unmarshal(data, &got)
		if got["intent"] != "greeting" || got["web_search_used"] != true || got["iteration_count"] != float64(1) {
			t.Errorf("metadata = %v", got)
		}
	})
}
