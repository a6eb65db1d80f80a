package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists step history in MySQL (or Aurora MySQL).
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?param=value]
//
//	user:password@tcp(localhost:3306)/ragflow?parseTime=true
//
// Credentials belong in the environment, never in source.
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects, verifies the connection and ensures the schema exists.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore[S]{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	stepsTable := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create workflow_steps table: %w", err)
	}
	return nil
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep implements Store.
func (m *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state = VALUES(state)
	`
	if _, err := m.db.ExecContext(ctx, query, runID, step, nodeID, stateJSON); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	var zero S
	if err := m.checkOpen(); err != nil {
		return zero, 0, err
	}

	query := `
		SELECT step, state
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON []byte
	err = m.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// LoadSteps implements Store.
func (m *MySQLStore[S]) LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT step, node_id, state, created_at
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step ASC
	`
	rows, err := m.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []StepRecord[S]
	for rows.Next() {
		var (
			record    StepRecord[S]
			stateJSON []byte
			createdAt string
		)
		if err := rows.Scan(&record.Step, &record.NodeID, &stateJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &record.State); err != nil {
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

// Close closes the connection pool. Calling Close more than once is safe.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database is reachable.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}
