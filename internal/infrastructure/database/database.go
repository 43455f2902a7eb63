package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
)

// MemoryPath opens a private in-memory database. Useful in tests.
const MemoryPath = ":memory:"

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
	pingTimeout     = 5 * time.Second
	connMaxIdleTime = 30 * time.Minute
)

// DB is the SQLite database holding the gateway's persistent state
// (resource value history and the migration ledger).
type DB struct {
	*sql.DB
	path string
}

// Config contains database configuration options.
type Config struct {
	// Path of the database file; parent directories are created.
	// MemoryPath keeps everything in memory.
	Path string

	// WALMode enables write-ahead logging so history queries do not block
	// the recorder.
	WALMode bool

	// BusyTimeout is how long a statement waits for a lock, in seconds.
	BusyTimeout int
}

// FromConfig maps the database section of the application config.
func FromConfig(c config.DatabaseConfig) Config {
	return Config{Path: c.Path, WALMode: c.WALMode, BusyTimeout: c.BusyTimeout}
}

// dsn builds the go-sqlite3 connection string for cfg.
func (cfg Config) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*1000))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode && cfg.Path != MemoryPath {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open opens (creating if needed) the database described by cfg and checks
// that it answers.
//
// SQLite allows one writer, so the pool holds a single connection. An
// in-memory database keeps that connection forever; recycling it would
// drop the data.
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Open database; Close releases it
//   - error: If the directory, file, or connection cannot be set up
func Open(cfg Config) (*DB, error) {
	memory := cfg.Path == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if !memory {
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if !memory {
		// The file exists after the ping.
		if err := os.Chmod(cfg.Path, filePermissions); err != nil {
			sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("restricting database permissions: %w", err)
		}
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the database. Calling it on a closed DB is harmless.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query. It satisfies the health endpoint's
// checker interface.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction on db, committing when fn returns nil
// and rolling back otherwise.
//
// Example:
//
//	err := database.WithTx(ctx, db.DB, func(tx *sql.Tx) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM resource_history WHERE observed_at < ?", cutoff)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
