package graph

import (
	"fmt"
	"time"
)

// Options configures Engine execution behavior.
//
// Zero values are valid; the engine then runs without step, node or wall-clock
// limits and without metrics.
type Options struct {
	// MaxSteps limits the number of node executions in one run. It is the
	// engine-level backstop against routing cycles; 0 disables the limit.
	MaxSteps int

	// DefaultNodeTimeout bounds each node execution unless the node has its own
	// NodePolicy.Timeout. 0 disables the limit.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds a whole run. 0 disables the limit.
	RunWallClockBudget time.Duration

	// Metrics receives step and run measurements. Nil disables recording.
	Metrics *PrometheusMetrics
}

// Option configures an Engine. Options are applied in order by New; the first
// failing option is reported by Run.
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
}

// WithMaxSteps limits the number of node executions per run.
//
// Example:
//
//	engine := New(reduce, st, emitter, WithMaxSteps(25))
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return fmt.Errorf("max steps must be >= 0, got %d", n)
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the timeout applied to nodes without their own
// policy.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("node timeout must be >= 0, got %v", d)
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget bounds the total duration of a run.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("run budget must be >= 0, got %v", d)
		}
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}
