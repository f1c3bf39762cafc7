// Package postgres persists the snapshot to a single-row Postgres table as
// JSONB, mirroring the sqlite backend's semantics over a shared server.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"vivarium/internal/infra/persistence"
	"vivarium/pkg/domain"
)

func init() {
	persistence.Register(persistence.DriverPostgres, func(dsn string) (persistence.Backend, error) {
		return NewStore(context.Background(), dsn)
	})
}

const defaultDSN = "postgres://localhost/vivarium?sslmode=disable"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is the Postgres-backed snapshot backend.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	rev uint64
}

// NewStore connects using the given DSN (falls back to defaultDSN) and
// ensures the snapshot table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen("pgx", dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		revision BIGINT NOT NULL,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure snapshot table: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads the saved snapshot; found is false on an empty table.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	var rev uint64
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT revision, payload FROM snapshot WHERE id = 1`).Scan(&rev, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("select snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	s.mu.Lock()
	s.rev = rev
	s.mu.Unlock()
	return snap, true, nil
}

// Save upserts the snapshot row, keeping the highest revision on
// out-of-order saves.
func (s *Store) Save(ctx context.Context, rev uint64, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev < s.rev {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot(id, revision, payload) VALUES(1, $1, $2)
		 ON CONFLICT(id) DO UPDATE SET revision=EXCLUDED.revision, payload=EXCLUDED.payload`,
		rev, payload); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	s.rev = rev
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
