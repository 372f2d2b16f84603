// Package database is the durable store for scan runs, change records,
// whitelist entries, regex rules and runtime settings.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Nomadcxx/embress/internal/paths"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const dsnOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_time_format=sqlite"

// MediaDB is the database handle.
type MediaDB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database at the default location
func Open() (*MediaDB, error) {
	dbPath, err := paths.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	return OpenPath(dbPath)
}

// OpenPath opens or creates the database at a specific path
func OpenPath(path string) (*MediaDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	mdb := &MediaDB{
		db:   db,
		path: path,
	}

	if err := mdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return mdb, nil
}

// OpenInMemory opens an in-memory database for testing
func OpenInMemory() (*MediaDB, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping in-memory database: %w", err)
	}

	mdb := &MediaDB{
		db:   db,
		path: ":memory:",
	}

	if err := mdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate in-memory database: %w", err)
	}

	return mdb, nil
}

// Close closes the database connection
func (m *MediaDB) Close() error {
	return m.db.Close()
}

// Path returns the filesystem path to the database file
func (m *MediaDB) Path() string {
	return m.path
}

// migrate applies any pending schema migrations
func (m *MediaDB) migrate() error {
	return applyMigrations(m.db)
}

// DB returns the underlying sql.DB for advanced operations
func (m *MediaDB) DB() *sql.DB {
	return m.db
}
