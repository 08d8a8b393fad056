// Package sqlstore implements the store interfaces over database/sql with
// two backends: PostgreSQL (pgx stdlib driver) and SQLite (modernc, cgo-free)
// for zero-config deployments. SQL is shared; placeholders are written $1..$n
// in ascending order, which both backends bind positionally.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

// DB wraps the sql handle and implements every store interface.
type DB struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured backend. The SQLite path's parent
// directory is created and the schema is bootstrapped in-place; Postgres
// schemas are managed by the migrate command.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &DB{db: db, driver: "postgres"}, nil
	case "", "sqlite":
		path := config.ExpandHome(cfg.SQLitePath)
		if path == "" {
			path = "swarmd.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent writers.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
		}
		return &DB{db: db, driver: "sqlite"}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenMemory opens an in-memory SQLite database, used by tests.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, driver: "sqlite"}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) Close() error { return d.db.Close() }

// Stores returns the interface container backed by this database.
func (d *DB) Stores() store.Stores {
	return store.Stores{
		Agents:    d,
		Tasks:     d,
		Messages:  d,
		Memory:    d,
		Knowledge: d,
		Logs:      d,
		Health:    d,
	}
}
