package rag

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultCollaboratorTimeout bounds a single collaborator call.
const DefaultCollaboratorTimeout = 30 * time.Second

// collaboratorContext derives the context for one collaborator call.
func collaboratorContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultCollaboratorTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func stepLogger(l *zap.Logger, step Step) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.With(zap.String("step", string(step)))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// topPassages returns at most n leading passages.
func topPassages(evidence []Passage, n int) []Passage {
	if len(evidence) > n {
		return evidence[:n]
	}
	return evidence
}
