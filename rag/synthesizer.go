package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// previewRunes is the citation preview length.
const previewRunes = 150

// Synthesizer writes the final answer. It is the terminal step.
type Synthesizer struct {
	Generator TextCompleter
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Run implements graph.Node.
func (y *Synthesizer) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(y.Logger, StepSynthesis)
	done := func(answer string, citations []Citation) graph.NodeResult[Update] {
		return graph.NodeResult[Update]{
			Delta: Update{Answer: ptr(answer), Citations: ptr(citations)},
			Route: graph.Stop(),
		}
	}

	switch {
	case s.ShouldDecline:
		logger.Info("answer declined", zap.String("reason", s.DeclineReason))
		answer := s.Answer
		if answer == "" {
			answer = DeclineMessage
		}
		return done(answer, []Citation{})

	case s.Intent == IntentKnowledgeSearch && len(s.Evidence) > 0:
		return y.grounded(ctx, s, logger)

	case s.Intent == IntentCalculation && s.Calculation != nil:
		answer := "The result is: " + s.Calculation.Result
		if len(s.Calculation.Steps) > 0 {
			answer += "\n\nCalculation steps:\n" + strings.Join(s.Calculation.Steps, "\n")
		}
		return done(answer, []Citation{})

	case s.Intent == IntentGreeting:
		return done(GreetingMessage, []Citation{})

	case s.Error != "":
		return done(fmt.Sprintf("I encountered an error: %s. Please try again.", s.Error), []Citation{})

	default:
		return done(CannotHelpMessage, []Citation{})
	}
}

func (y *Synthesizer) grounded(ctx context.Context, s State, logger *zap.Logger) graph.NodeResult[Update] {
	top := topPassages(s.Evidence, 3)
	sources := make([]string, len(top))
	for i, p := range top {
		sources[i] = fmt.Sprintf("[Source %d]\n%s", i+1, p.Text)
	}

	cctx, cancel := collaboratorContext(ctx, y.Timeout)
	defer cancel()

	start := time.Now()
	answer, err := y.Generator.Complete(cctx, Prompt{
		System: fmt.Sprintf(synthesizerSystemPrompt, strings.Join(sources, "\n\n---\n\n")),
		User:   s.Query,
	})
	if err != nil {
		logger.Error("answer generation failed", zap.Error(err))
		return graph.NodeResult[Update]{
			Delta: Update{
				Answer:    ptr(GenerationFailedMessage),
				Citations: ptr([]Citation{}),
				Error:     ptr("Synthesis failed: " + err.Error()),
			},
			Route: graph.Stop(),
		}
	}

	logger.Info("answer generated",
		zap.Int("sources", len(top)),
		zap.Duration("latency", time.Since(start)),
	)
	return graph.NodeResult[Update]{
		Delta: Update{Answer: ptr(answer), Citations: ptr(BuildCitations(top))},
		Route: graph.Stop(),
	}
}

// BuildCitations attributes each passage in order.
func BuildCitations(passages []Passage) []Citation {
	citations := make([]Citation, len(passages))
	for i, p := range passages {
		c := Citation{
			Source:         citationSource(p, i),
			ContentPreview: preview(p.Text),
			ChunkID:        p.Metadata["chunk_id"],
		}
		if p.Score != nil {
			c.SimilarityScore = *p.Score
		}
		if c.ChunkID == "" {
			c.ChunkID = strconv.Itoa(i)
		}
		citations[i] = c
	}
	return citations
}

func citationSource(p Passage, i int) string {
	if src := p.Metadata["source"]; src != "" {
		return src
	}
	switch p.Origin {
	case OriginWeb:
		if title := p.Metadata["title"]; title != "" {
			return title
		}
	case OriginGraph:
		return "Knowledge Graph"
	}
	return fmt.Sprintf("Document %d", i+1)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
