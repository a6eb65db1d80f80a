// Package pgvector searches passages stored in PostgreSQL with the pgvector
// extension.
//
// The expected table layout is:
//
//	CREATE TABLE documents (
//	    id        TEXT PRIMARY KEY,
//	    content   TEXT NOT NULL,
//	    source    TEXT NOT NULL DEFAULT '',
//	    metadata  JSONB NOT NULL DEFAULT '{}',
//	    embedding vector(1536) NOT NULL
//	);
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/rag"
	"github.com/dshills/ragflow/retrieval"
)

// DefaultTable is the table searched when none is configured.
const DefaultTable = "documents"

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// querier is the subset of pgxpool.Pool used for search.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Index implements rag.VectorSearcher over a pgvector table.
type Index struct {
	db       querier
	pool     *pgxpool.Pool
	table    string
	embedder retrieval.Embedder
	logger   *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithTable searches table instead of DefaultTable.
func WithTable(table string) Option {
	return func(i *Index) {
		i.table = table
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, embedder retrieval.Embedder, opts ...Option) (*Index, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	idx, err := newIndex(pool, embedder, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	idx.pool = pool
	return idx, nil
}

func newIndex(db querier, embedder retrieval.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("pgvector: embedder is required")
	}
	idx := &Index{
		db:       db,
		table:    DefaultTable,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if !validTable.MatchString(idx.table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", idx.table)
	}
	idx.logger = idx.logger.With(zap.String("component", "pgvector"))
	return idx, nil
}

// Search embeds query and returns the k nearest rows by cosine distance.
func (i *Index) Search(ctx context.Context, query string, k int) ([]rag.Match, error) {
	if k <= 0 {
		return []rag.Match{}, nil
	}
	start := time.Now()

	vec, err := retrieval.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(
		`SELECT id, content, source, metadata, embedding <=> $1 AS distance FROM %s ORDER BY embedding <=> $1 LIMIT $2`,
		i.table)
	rows, err := i.db.Query(ctx, sql, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var matches []rag.Match
	for rows.Next() {
		var (
			m        rag.Match
			source   string
			rawMeta  []byte
			distance float64
		)
		if err := rows.Scan(&m.ID, &m.Text, &source, &rawMeta, &distance); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		m.Distance = distance
		m.Metadata = decodeMetadata(rawMeta)
		if source != "" {
			if m.Metadata == nil {
				m.Metadata = make(map[string]string, 2)
			}
			m.Metadata[retrieval.MetaSource] = source
		}
		if _, ok := m.Metadata[retrieval.MetaChunkID]; !ok {
			if m.Metadata == nil {
				m.Metadata = make(map[string]string, 1)
			}
			m.Metadata[retrieval.MetaChunkID] = m.ID
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector rows: %w", err)
	}

	i.logger.Debug("query finished",
		zap.Int("matches", len(matches)),
		zap.Duration("latency", time.Since(start)),
	)
	return matches, nil
}

func decodeMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return retrieval.StringMetadata(meta)
}

// Ping checks the database connection.
func (i *Index) Ping(ctx context.Context) error {
	if i.pool == nil {
		return nil
	}
	return i.pool.Ping(ctx)
}

// Close releases the connection pool.
func (i *Index) Close() {
	if i.pool != nil {
		i.pool.Close()
	}
}
