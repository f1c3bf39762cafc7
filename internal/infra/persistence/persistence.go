// Package persistence selects and drives the snapshot backend. The engine
// itself is in-memory; a backend replays the last saved snapshot at startup
// and records every installed revision afterwards.
package persistence

import (
	"context"
	"fmt"
	"os"

	"vivarium/pkg/domain"
)

// Driver identifies a concrete snapshot backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // no persistence, seed on every start
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Backend stores the latest snapshot. Save overwrites; Load reports found
// false when nothing was saved yet.
type Backend interface {
	Load(ctx context.Context) (domain.Snapshot, bool, error)
	Save(ctx context.Context, rev uint64, snap domain.Snapshot) error
	Close() error
}

// Opener builds a backend from a DSN or path. The sqlite and postgres
// subpackages register through OpenFuncs to keep driver imports out of
// callers that only need the memory backend.
type Opener func(dsn string) (Backend, error)

// OpenFuncs maps drivers to constructors. Populated by Register calls from
// the backend subpackages' importers (see cmd wiring).
var openFuncs = map[Driver]Opener{}

// Register installs the constructor for a driver.
func Register(d Driver, open Opener) {
	openFuncs[d] = open
}

// Open selects a backend from the environment. Defaults to sqlite when unset.
//
//	VIVARIUM_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	VIVARIUM_SQLITE_PATH: path to sqlite file (default ./vivarium.db)
//	VIVARIUM_POSTGRES_DSN: postgres DSN when driver=postgres
func Open() (Backend, error) {
	driver := Driver(os.Getenv("VIVARIUM_STORAGE_DRIVER"))
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		open, ok := openFuncs[DriverSQLite]
		if !ok {
			return nil, fmt.Errorf("sqlite backend not linked in")
		}
		return open(os.Getenv("VIVARIUM_SQLITE_PATH"))
	case DriverPostgres:
		open, ok := openFuncs[DriverPostgres]
		if !ok {
			return nil, fmt.Errorf("postgres backend not linked in")
		}
		return open(os.Getenv("VIVARIUM_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// Bootstrap returns the snapshot to seed the store with: the saved one when
// it loads and passes the sanity check, the fallback otherwise. A snapshot
// that decodes but fails the check is discarded rather than propagated, so a
// corrupted file degrades to a reseed instead of a refusal to start.
func Bootstrap(ctx context.Context, backend Backend, fallback domain.Snapshot) (domain.Snapshot, error) {
	snap, found, err := backend.Load(ctx)
	if err != nil {
		return fallback, err
	}
	if !found || !Sane(snap) {
		return fallback, nil
	}
	return snap, nil
}

// Sane runs structural checks over a loaded snapshot: the role must be known,
// every animal's cage must exist, and cage membership must point back at real
// animals. A snapshot failing any check is unusable for mutations.
func Sane(snap domain.Snapshot) bool {
	switch snap.CurrentRole {
	case domain.RoleResearcher, domain.RolePI, domain.RoleAdmin:
	default:
		return false
	}
	cages := make(map[string]bool, len(snap.Cages))
	for _, c := range snap.Cages {
		if c.ID == "" || cages[c.ID] {
			return false
		}
		cages[c.ID] = true
	}
	animals := make(map[string]bool, len(snap.Animals))
	for _, a := range snap.Animals {
		if a.ID == "" || animals[a.ID] {
			return false
		}
		animals[a.ID] = true
		if a.CageID != "" && !cages[a.CageID] {
			return false
		}
	}
	for _, c := range snap.Cages {
		for _, id := range c.AnimalIDs {
			if !animals[id] {
				return false
			}
		}
	}
	return true
}
