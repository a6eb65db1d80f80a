package rag

import (
	"sync/atomic"
	"time"
)

// Stats aggregates query outcomes across concurrent runs.
//
// All methods are safe for concurrent use and a nil *Stats ignores updates.
type Stats struct {
	total         atomic.Int64
	successful    atomic.Int64
	failed        atomic.Int64
	latencyMicros atomic.Int64
	intents       [5]atomic.Int64 // indexed like Intents
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalQueries       int64            `json:"total_queries"`
	SuccessfulQueries  int64            `json:"successful_queries"`
	FailedQueries      int64            `json:"failed_queries"`
	AvgLatencyMS       float64          `json:"avg_latency_ms"`
	IntentDistribution map[string]int64 `json:"intent_distribution"`
}

// NewStats creates an empty accumulator.
func NewStats() *Stats {
	return &Stats{}
}

// QueryStarted counts an accepted query.
func (s *Stats) QueryStarted() {
	if s == nil {
		return
	}
	s.total.Add(1)
}

// QuerySucceeded records a completed run.
func (s *Stats) QuerySucceeded(intent Intent, latency time.Duration) {
	if s == nil {
		return
	}
	s.successful.Add(1)
	s.latencyMicros.Add(latency.Microseconds())
	s.intents[intentIndex(intent)].Add(1)
}

// QueryFailed records a run that ended with an engine error.
func (s *Stats) QueryFailed() {
	if s == nil {
		return
	}
	s.failed.Add(1)
}

// Snapshot returns the current totals. Intents never seen are omitted from
// the distribution.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{IntentDistribution: make(map[string]int64)}
	if s == nil {
		return snap
	}

	snap.TotalQueries = s.total.Load()
	snap.SuccessfulQueries = s.successful.Load()
	snap.FailedQueries = s.failed.Load()
	if snap.SuccessfulQueries > 0 {
		snap.AvgLatencyMS = float64(s.latencyMicros.Load()) / 1000 / float64(snap.SuccessfulQueries)
	}
	for i, intent := range Intents {
		if n := s.intents[i].Load(); n > 0 {
			snap.IntentDistribution[string(intent)] = n
		}
	}
	return snap
}

func intentIndex(intent Intent) int {
	for i, in := range Intents {
		if in == intent {
			return i
		}
	}
	return len(Intents) - 1
}
