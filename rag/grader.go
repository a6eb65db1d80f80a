package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// Grader judges whether the evidence can answer the query.
//
// Empty evidence and a mean similarity below Threshold are graded without a
// collaborator call. A grading failure counts as relevant so that a flaky
// grader never blocks an answer.
type Grader struct {
	Completer TextCompleter
	Threshold float64
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Run implements graph.Node.
func (g *Grader) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(g.Logger, StepGrader)

	if len(s.Evidence) == 0 {
		logger.Warn("no documents to grade")
		return graded(GradeNotRelevant, "No documents were retrieved from the knowledge base.")
	}

	avg := MeanScore(s.Evidence)
	if avg < g.Threshold {
		logger.Info("low similarity, skipping grader call", zap.Float64("avg", avg))
		return graded(GradeNotRelevant,
			fmt.Sprintf("Retrieved documents have low similarity scores (avg: %.3f). Query may need rewriting.", avg))
	}

	top := topPassages(s.Evidence, 3)
	docs := make([]string, len(top))
	for i, p := range top {
		docs[i] = p.Text
	}

	cctx, cancel := collaboratorContext(ctx, g.Timeout)
	defer cancel()

	reply, err := g.Completer.Complete(cctx, Prompt{
		System: graderSystemPrompt,
		User: fmt.Sprintf("User Question: %s\n\nRetrieved Documents:\n%s\n\nGrade (relevant/not_relevant):",
			s.Query, strings.Join(docs, "\n\n---\n\n")),
	})
	if err != nil {
		logger.Error("grading failed, defaulting to relevant", zap.Error(err))
		return graded(GradeRelevant, "Grading error (defaulting to relevant): "+err.Error())
	}

	verdict := strings.ToLower(strings.TrimSpace(reply))
	if strings.Contains(verdict, "relevant") && !strings.Contains(verdict, "not_relevant") {
		logger.Info("documents graded", zap.String("grade", string(GradeRelevant)))
		return graded(GradeRelevant, "LLM grader determined documents are relevant to the query.")
	}
	logger.Info("documents graded", zap.String("grade", string(GradeNotRelevant)))
	return graded(GradeNotRelevant, "LLM grader determined documents are not relevant to the query.")
}

func graded(grade Grade, reasoning string) graph.NodeResult[Update] {
	return graph.NodeResult[Update]{Delta: Update{
		Grade:          ptr(grade),
		GradeReasoning: ptr(reasoning),
		ShouldRewrite:  ptr(grade == GradeNotRelevant),
	}}
}

// MeanScore averages the scored passages. Passages without a score are
// ignored; the mean of none is 0.
func MeanScore(evidence []Passage) float64 {
	var sum float64
	var n int
	for _, p := range evidence {
		if p.Score == nil {
			continue
		}
		sum += *p.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
