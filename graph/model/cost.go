package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing for the models this service is usually configured with.
// Prices change; override with SetCustomPricing rather than editing callers.
var defaultModelPricing = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":                 {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":            {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":                {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":           {InputPer1M: 0.40, OutputPer1M: 1.60},
	"gpt-4-turbo":            {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo":          {InputPer1M: 0.50, OutputPer1M: 1.50},
	"text-embedding-3-small": {InputPer1M: 0.02},
	"text-embedding-3-large": {InputPer1M: 0.13},

	// Anthropic
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"claude-sonnet-4-20250514":   {InputPer1M: 3.00, OutputPer1M: 15.00},

	// Google
	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},
}

// LLMCall is one recorded invocation.
type LLMCall struct {
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
	Label        string    `json:"label,omitempty"`
}

// CostTracker accumulates token usage and cost across LLM calls.
//
// Unknown models are recorded with zero cost so token counts stay accurate.
// Only the most recent calls are kept in history; totals cover every call.
// All methods are safe for concurrent use.
//
// Usage:
//
//	tracker := model.NewCostTracker(1000)
//	chat := model.Tracked(openai.NewChatModel(key, "gpt-4o-mini"), tracker, "gpt-4o-mini")
//	...
//	fmt.Printf("spent $%.4f\n", tracker.TotalCost())
type CostTracker struct {
	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []LLMCall
	maxHistory   int
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
	callCount    int64
	enabled      bool
}

// NewCostTracker creates a tracker with the default pricing table that keeps
// up to maxHistory calls (<= 0 means 1000).
func NewCostTracker(maxHistory int) *CostTracker {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		pricing:    pricing,
		maxHistory: maxHistory,
		modelCosts: make(map[string]float64),
		enabled:    true,
	}
}

// Record adds one call and returns its cost in USD.
func (ct *CostTracker) Record(modelName string, inputTokens, outputTokens int, label string) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.enabled {
		return 0
	}

	pricing := ct.priceFor(modelName)
	cost := float64(inputTokens)/1_000_000.0*pricing.InputPer1M +
		float64(outputTokens)/1_000_000.0*pricing.OutputPer1M

	ct.calls = append(ct.calls, LLMCall{
		Model:        modelName,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
		Label:        label,
	})
	if len(ct.calls) > ct.maxHistory {
		ct.calls = ct.calls[len(ct.calls)-ct.maxHistory:]
	}

	ct.totalCost += cost
	ct.modelCosts[modelName] += cost
	ct.inputTokens += int64(inputTokens)
	ct.outputTokens += int64(outputTokens)
	ct.callCount++
	return cost
}

// priceFor looks up exact pricing first, then the longest known prefix so
// dated snapshots ("gpt-4o-mini-2024-07-18") price like their family.
func (ct *CostTracker) priceFor(modelName string) ModelPricing {
	if p, ok := ct.pricing[modelName]; ok {
		return p
	}
	var best string
	for name := range ct.pricing {
		if strings.HasPrefix(modelName, name) && len(name) > len(best) {
			best = name
		}
	}
	return ct.pricing[best]
}

// TotalCost returns the cumulative cost in USD.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for m, c := range ct.modelCosts {
		costs[m] = c
	}
	return costs
}

// CallHistory returns a copy of the retained calls, oldest first.
func (ct *CostTracker) CallHistory() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.calls))
	copy(calls, ct.calls)
	return calls
}

// TokenUsage returns total input and output tokens.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// Calls returns how many calls were recorded in total.
func (ct *CostTracker) Calls() int64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.callCount
}

// SetCustomPricing overrides pricing for modelName.
func (ct *CostTracker) SetCustomPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops recording (useful for testing).
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable resumes recording after Disable.
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears totals and history but keeps pricing.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.calls = nil
	ct.totalCost = 0
	ct.modelCosts = make(map[string]float64)
	ct.inputTokens = 0
	ct.outputTokens = 0
	ct.callCount = 0
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf("CostTracker{Calls: %d, TotalCost: $%.4f, InputTokens: %d, OutputTokens: %d}",
		ct.callCount, ct.totalCost, ct.inputTokens, ct.outputTokens)
}

type trackedModel struct {
	next         ChatModel
	tracker      *CostTracker
	defaultModel string
}

// Tracked wraps next so that every successful call is recorded in tracker.
// The model name reported by the provider is used when present, otherwise
// defaultModel.
func Tracked(next ChatModel, tracker *CostTracker, defaultModel string) ChatModel {
	return &trackedModel{next: next, tracker: tracker, defaultModel: defaultModel}
}

// Chat implements ChatModel.
func (t *trackedModel) Chat(ctx context.Context, messages []Message, opts ...CallOption) (ChatOut, error) {
	out, err := t.next.Chat(ctx, messages, opts...)
	if err != nil {
		return out, err
	}
	name := out.Model
	if name == "" {
		name = t.defaultModel
	}
	if t.tracker != nil {
		t.tracker.Record(name, out.Usage.InputTokens, out.Usage.OutputTokens, "")
	}
	return out, nil
}
