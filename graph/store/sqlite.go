package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists step history in a SQLite database.
//
// It uses the pure-Go modernc.org/sqlite driver, so no cgo is required. The
// database runs in WAL mode with a single connection, which matches SQLite's
// single-writer model. Use ":memory:" for an ephemeral store in tests.
//
// Example:
//
//	st, err := store.NewSQLiteStore[rag.State]("./ragflow.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	stepsTable := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)
	`
	if _, err := s.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create workflow_steps table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)"); err != nil {
		return fmt.Errorf("failed to create idx_steps_run_id: %w", err)
	}
	return nil
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep implements Store.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, nodeID, string(stateJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	var zero S
	if err := s.checkOpen(); err != nil {
		return zero, 0, err
	}

	query := `
		SELECT step, state
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON string
	err = s.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// LoadSteps implements Store.
func (s *SQLiteStore[S]) LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT step, node_id, state, created_at
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []StepRecord[S]
	for rows.Next() {
		var (
			record    StepRecord[S]
			stateJSON string
			createdAt string
		)
		if err := rows.Scan(&record.Step, &record.NodeID, &stateJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &record.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
		record.CreatedAt = parseTimestamp(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// Close closes the database. Calling Close more than once is safe.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}

// parseTimestamp accepts the layouts SQLite and the driver produce for
// CURRENT_TIMESTAMP columns. Unparseable values yield the zero time.
func parseTimestamp(v string) time.Time {
	layouts := []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
