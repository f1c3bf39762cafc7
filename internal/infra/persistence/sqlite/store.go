// Package sqlite persists the snapshot to a single-row SQLite table as a
// JSON payload. Every save rewrites the row inside one transaction, so the
// file always holds exactly one complete snapshot.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"vivarium/internal/infra/persistence"
	"vivarium/pkg/domain"
)

func init() {
	persistence.Register(persistence.DriverSQLite, func(path string) (persistence.Backend, error) {
		return NewStore(path)
	})
}

// Store is the SQLite-backed snapshot backend.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	rev  uint64
	path string
}

// NewStore opens (creating if needed) the database at path. An empty path
// defaults to ./vivarium.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "vivarium.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		revision INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Load reads the saved snapshot. Found is false on an empty database. A
// payload that fails to decode reports an error; the caller decides whether
// to reseed.
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

// Save upserts the snapshot row. Saves arriving out of order keep the
// highest revision.
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
		`INSERT INTO snapshot(id, revision, payload) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET revision=excluded.revision, payload=excluded.payload`,
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
