// Package neo4j looks up entities related to a query in a Neo4j knowledge
// graph.
//
// Entities are (:Entity {name, type}) nodes linked to each other and to the
// (:Document {id, source}) nodes that mention them through MENTIONED_IN.
// Entity to entity links are RELATES_TO edges carrying the relation name in
// their type property.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/rag"
)

// minKeywordRunes is the shortest query word used for matching.
const minKeywordRunes = 4

const relatedQuery = `
MATCH (e:Entity)
WHERE any(kw IN $keywords WHERE toLower(e.name) CONTAINS kw)
OPTIONAL MATCH (e)-[r]-(related:Entity)
OPTIONAL MATCH (e)-[:MENTIONED_IN]->(d:Document)
WITH e,
     collect(DISTINCT {target: related.name, relation: coalesce(r.type, type(r))}) AS relationships,
     collect(DISTINCT d.source) AS sources
RETURN e.name AS name, coalesce(e.type, 'CONCEPT') AS type, relationships, sources
LIMIT $limit`

var schemaStatements = []string{
	"CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)",
	"CREATE INDEX document_id IF NOT EXISTS FOR (d:Document) ON (d.id)",
}

// Config configures a Graph.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

type executeFunc func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)

// Graph implements rag.GraphQuerier. A nil *Graph reports the graph as
// unavailable.
type Graph struct {
	driver  neo4j.DriverWithContext
	execute executeFunc
	logger  *zap.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// Connect opens a driver and verifies connectivity.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Graph, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j: uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	g := newGraph(func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
		res, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(cfg.Database),
			neo4j.ExecuteQueryWithReadersRouting())
		if err != nil {
			return nil, err
		}
		return res.Records, nil
	}, opts...)
	g.driver = driver
	return g, nil
}

func newGraph(execute executeFunc, opts ...Option) *Graph {
	g := &Graph{execute: execute, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "neo4j"))
	return g
}

// EnsureIndexes creates the lookup indexes if they are missing.
func (g *Graph) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := g.execute(ctx, stmt, nil); err != nil {
			return fmt.Errorf("neo4j: %s: %w", stmt, err)
		}
	}
	return nil
}

// Related finds entities whose name contains a query keyword, with their
// neighbours and the documents that mention them.
func (g *Graph) Related(ctx context.Context, query string, limit int) rag.GraphResult {
	if g == nil || g.execute == nil {
		return rag.GraphResult{Availability: rag.GraphUnavailable}
	}
	keywords := Keywords(query)
	if len(keywords) == 0 || limit <= 0 {
		return rag.GraphResult{Availability: rag.GraphEmpty}
	}

	start := time.Now()
	records, err := g.execute(ctx, relatedQuery, map[string]any{
		"keywords": keywords,
		"limit":    int64(limit),
	})
	if err != nil {
		g.logger.Warn("related entity lookup failed", zap.Error(err))
		return rag.GraphResult{Availability: rag.GraphUnavailable, Err: err}
	}

	entities := make([]rag.Entity, 0, len(records))
	for _, rec := range records {
		ent, ok := toEntity(rec)
		if ok {
			entities = append(entities, ent)
		}
	}

	g.logger.Debug("related entity lookup finished",
		zap.Strings("keywords", keywords),
		zap.Int("entities", len(entities)),
		zap.Duration("latency", time.Since(start)),
	)
	if len(entities) == 0 {
		return rag.GraphResult{Availability: rag.GraphEmpty}
	}
	return rag.GraphResult{Availability: rag.GraphFound, Entities: entities}
}

func toEntity(rec *neo4j.Record) (rag.Entity, bool) {
	name, isNil, err := neo4j.GetRecordValue[string](rec, "name")
	if err != nil || isNil || name == "" {
		return rag.Entity{}, false
	}
	ent := rag.Entity{Name: name}
	if typ, _, err := neo4j.GetRecordValue[string](rec, "type"); err == nil {
		ent.Type = typ
	}

	if rels, _, err := neo4j.GetRecordValue[[]any](rec, "relationships"); err == nil {
		for _, raw := range rels {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			target, _ := m["target"].(string)
			relation, _ := m["relation"].(string)
			if target == "" {
				continue
			}
			ent.Relationships = append(ent.Relationships, rag.Relationship{Relation: relation, Target: target})
		}
	}

	if sources, _, err := neo4j.GetRecordValue[[]any](rec, "sources"); err == nil {
		for _, raw := range sources {
			if s, ok := raw.(string); ok && s != "" {
				ent.Sources = append(ent.Sources, s)
			}
		}
	}
	return ent, true
}

// Keywords lowercases query and keeps the words of at least four letters,
// without surrounding punctuation and without repeats.
func Keywords(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if utf8.RuneCountInString(w) < minKeywordRunes || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Ping verifies connectivity.
func (g *Graph) Ping(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return errors.New("neo4j: not connected")
	}
	return g.driver.VerifyConnectivity(ctx)
}

// Close closes the driver.
func (g *Graph) Close(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}
