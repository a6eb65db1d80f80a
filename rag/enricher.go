package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph"
)

// DefaultGraphLimit caps how many related entities are requested.
const DefaultGraphLimit = 10

// Description limits for the synthetic graph passage.
const (
	maxDescribedEntities = 5
	maxRelationships     = 5
	maxEntitySources     = 3
)

// GraphEnricher prepends knowledge graph context to the evidence. A missing,
// unreachable or empty graph leaves the state unchanged.
type GraphEnricher struct {
	Graph   GraphQuerier
	Limit   int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Run implements graph.Node.
func (g *GraphEnricher) Run(ctx context.Context, s State) graph.NodeResult[Update] {
	logger := stepLogger(g.Logger, StepGraphEnrich)

	if g.Graph == nil {
		logger.Debug("no knowledge graph configured")
		return graph.NodeResult[Update]{}
	}

	limit := g.Limit
	if limit <= 0 {
		limit = DefaultGraphLimit
	}

	cctx, cancel := collaboratorContext(ctx, g.Timeout)
	defer cancel()

	result := g.Graph.Related(cctx, s.Query, limit)
	if result.Availability != GraphFound {
		fields := []zap.Field{zap.Stringer("availability", result.Availability)}
		if result.Err != nil {
			fields = append(fields, zap.Error(result.Err))
		}
		logger.Info("skipping graph enrichment", fields...)
		return graph.NodeResult[Update]{}
	}

	description := DescribeEntities(result.Entities)
	if description == "" {
		logger.Info("graph entities carried no description")
		return graph.NodeResult[Update]{}
	}

	evidence := make([]Passage, 0, len(s.Evidence)+1)
	evidence = append(evidence, Passage{
		Text:   "[Graph Knowledge]\n" + description,
		Origin: OriginGraph,
	})
	evidence = append(evidence, s.Evidence...)
	entities := append([]Entity(nil), result.Entities...)

	logger.Info("added graph context", zap.Int("entities", len(entities)))

	return graph.NodeResult[Update]{Delta: Update{
		Evidence:        &evidence,
		GraphEntities:   &entities,
		AppendReasoning: []string{fmt.Sprintf("[Graph] Found %d related entities in knowledge graph.", len(entities))},
	}}
}

// DescribeEntities renders up to five named entities with their outgoing
// relationships and source documents, separated by blank lines.
func DescribeEntities(entities []Entity) string {
	parts := make([]string, 0, maxDescribedEntities)
	for _, e := range entities {
		if len(parts) == maxDescribedEntities {
			break
		}
		if e.Name == "" {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Entity: %s (%s)", e.Name, e.Type)

		rels := make([]string, 0, maxRelationships)
		for _, r := range e.Relationships {
			if r.Target == "" {
				continue
			}
			rels = append(rels, r.Relation+" -> "+r.Target)
			if len(rels) == maxRelationships {
				break
			}
		}
		if len(rels) > 0 {
			b.WriteString("\n  Relationships: " + strings.Join(rels, ", "))
		}

		sources := e.Sources
		if len(sources) > maxEntitySources {
			sources = sources[:maxEntitySources]
		}
		if len(sources) > 0 {
			b.WriteString("\n  Found in: " + strings.Join(sources, ", "))
		}

		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}
