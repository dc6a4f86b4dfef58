// Package database is the kuzudb/go-kuzu-backed implementation of the
// internal/repositories interfaces: a pooled connection manager plus one
// repository type per persisted entity, adapted from the teacher's
// connection-pool-and-Cypher-query idiom.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kuzudb/go-kuzu"
)

// Config holds KuzuDB connection-pool tuning.
type Config struct {
	DatabasePath   string        `json:"database_path"`
	MaxConnections int           `json:"max_connections"`
	ConnTimeout    time.Duration `json:"connection_timeout"`
	QueryTimeout   time.Duration `json:"query_timeout"`
	BufferPoolMB   uint64        `json:"buffer_pool_size_mb"`
	ReadOnly       bool          `json:"read_only"`
}

// DefaultConfig returns sensible defaults for local/dev use.
func DefaultConfig() Config {
	return Config{
		DatabasePath:   "./data/agentctl.kuzu",
		MaxConnections: 10,
		ConnTimeout:    30 * time.Second,
		QueryTimeout:   60 * time.Second,
		BufferPoolMB:   512,
		ReadOnly:       false,
	}
}

// Manager pools kuzu.Connection handles over one kuzu.Database, matching the
// teacher's KuzuConnectionManager pooling shape.
type Manager struct {
	cfg         Config
	db          *kuzu.Database
	connections chan *kuzu.Connection
	inUse       map[*kuzu.Connection]bool
	mu          sync.RWMutex
	closed      bool
}

// NewManager opens the database and pre-populates the connection pool.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 60 * time.Second
	}
	if cfg.BufferPoolMB == 0 {
		cfg.BufferPoolMB = 512
	}

	db, err := kuzu.OpenDatabase(cfg.DatabasePath, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("open kuzu database at %s: %w", cfg.DatabasePath, err)
	}

	m := &Manager{
		cfg:         cfg,
		db:          db,
		connections: make(chan *kuzu.Connection, cfg.MaxConnections),
		inUse:       make(map[*kuzu.Connection]bool),
	}

	for i := 0; i < cfg.MaxConnections; i++ {
		conn, err := kuzu.NewConnection(db)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("create kuzu connection %d: %w", i, err)
		}
		m.connections <- conn
	}

	if err := m.initSchema(); err != nil {
		m.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return m, nil
}

func (m *Manager) acquire(ctx context.Context) (*kuzu.Connection, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("connection manager is closed")
	}
	m.mu.RUnlock()

	select {
	case conn := <-m.connections:
		m.mu.Lock()
		m.inUse[conn] = true
		m.mu.Unlock()
		return conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("connection acquisition timed out: %w", ctx.Err())
	}
}

func (m *Manager) release(conn *kuzu.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		conn.Close()
		return
	}
	delete(m.inUse, conn)
	select {
	case m.connections <- conn:
	default:
		conn.Close()
	}
}

// Query runs a single, fully interpolated Cypher statement on a pooled
// connection and returns the raw result. No caller in this package uses the
// driver's parameter binding.
func (m *Manager) Query(ctx context.Context, cypher string) (*kuzu.QueryResult, error) {
	conn, err := m.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer m.release(conn)

	resultCh := make(chan *kuzu.QueryResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := conn.Query(cypher)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result, nil
	case err := <-errCh:
		return nil, fmt.Errorf("query execution failed: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("query execution cancelled: %w", ctx.Err())
	}
}

// WithTransaction runs fn against one dedicated connection inside
// BEGIN/COMMIT, rolling back on error.
func (m *Manager) WithTransaction(ctx context.Context, fn func(conn *kuzu.Connection) error) error {
	conn, err := m.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire transaction connection: %w", err)
	}
	defer m.release(conn)

	if _, err := conn.Query("BEGIN TRANSACTION;"); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(conn); err != nil {
		if _, rbErr := conn.Query("ROLLBACK;"); rbErr != nil {
			return fmt.Errorf("rollback after %v also failed: %w", err, rbErr)
		}
		return fmt.Errorf("transaction rolled back: %w", err)
	}

	if _, err := conn.Query("COMMIT;"); err != nil {
		if _, rbErr := conn.Query("ROLLBACK;"); rbErr != nil {
			return fmt.Errorf("commit failed and rollback also failed: %w", rbErr)
		}
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// HealthCheck verifies the pool still has a usable connection.
func (m *Manager) HealthCheck(ctx context.Context) error {
	_, err := m.Query(ctx, "RETURN 1;")
	if err != nil {
		return fmt.Errorf("database connectivity check failed: %w", err)
	}
	return nil
}

// PoolStats reports current pool occupancy for /api/health and CLI status.
type PoolStats struct {
	MaxConnections       int
	AvailableConnections int
	InUseConnections     int
}

func (m *Manager) PoolStats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PoolStats{
		MaxConnections:       m.cfg.MaxConnections,
		AvailableConnections: len(m.connections),
		InUseConnections:     len(m.inUse),
	}
}

// Close drains the pool and closes the underlying database.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	close(m.connections)
	for conn := range m.connections {
		conn.Close()
	}
	for conn := range m.inUse {
		conn.Close()
	}
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *Manager) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := m.Query(context.Background(), stmt); err != nil {
			return fmt.Errorf("schema statement %q: %w", stmt, err)
		}
	}
	return nil
}
