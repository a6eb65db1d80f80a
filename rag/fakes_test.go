package rag

import (
	"context"
	"encoding/json"
	"sync"
)

type fakeClassifier struct {
	mu      sync.Mutex
	reply   classification
	err     error
	calls   int
	prompts []Prompt
}

func (f *fakeClassifier) CompleteStructured(ctx context.Context, prompt Prompt, _ Schema, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	data, _ := json.Marshal(f.reply)
	return json.Unmarshal(data, out)
}

func classifyAs(intent Intent) *fakeClassifier {
	return &fakeClassifier{reply: classification{Intent: string(intent), Confidence: 0.9, Reasoning: "test"}}
}

// scriptedCompleter returns replies in order and repeats the last one.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	prompts []Prompt
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	idx := s.calls - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeVectors struct {
	mu      sync.Mutex
	matches []Match
	err     error
	calls   int
	queries []string
	ks      []int
}

func (f *fakeVectors) Search(ctx context.Context, query string, k int) ([]Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeGraph struct {
	result GraphResult
	calls  int
	query  string
}

func (f *fakeGraph) Related(ctx context.Context, query string, limit int) GraphResult {
	f.calls++
	f.query = query
	return f.result
}

type fakeWeb struct {
	name    string
	results []WebResult
	err     error
	calls   int
	queries []string
}

func (f *fakeWeb) Name() string { return f.name }

func (f *fakeWeb) Search(ctx context.Context, query string, max int) ([]WebResult, error) {
	f.calls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// blockingVectors waits for its context to end.
type blockingVectors struct{}

func (blockingVectors) Search(ctx context.Context, _ string, _ int) ([]Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func goodMatch(text string, distance float64, source string) Match {
	return Match{ID: text, Text: text, Distance: distance, Metadata: map[string]string{"source": source}}
}

func score(v float64) *float64 {
	return &v
}
