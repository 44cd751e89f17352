package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteConfig holds SQLite-specific connection settings
type SQLiteConfig struct {
	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// EnableForeignKeys enables foreign key constraint checking
	EnableForeignKeys bool

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string
}

// DefaultSQLiteConfig returns the settings migren uses unless told otherwise
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		BusyTimeout:       30 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "DELETE",
	}
}

// Validate checks the configuration values
func (c SQLiteConfig) Validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}

	validJournalModes := map[string]bool{
		"DELETE":   true,
		"TRUNCATE": true,
		"PERSIST":  true,
		"MEMORY":   true,
		"WAL":      true,
		"OFF":      true,
	}
	if c.JournalMode != "" && !validJournalModes[c.JournalMode] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}
	return nil
}

// apply pins the pool to a single connection and sets the PRAGMAs on it.
// PRAGMAs are per connection, and a migration run never needs more than one.
func (c SQLiteConfig) apply(ctx context.Context, db *sql.DB) error {
	if err := c.Validate(); err != nil {
		return err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", c.BusyTimeout.Milliseconds()),
	}
	if c.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode = %s", c.JournalMode))
	}
	if c.EnableForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to run %q: %w", pragma, err)
		}
	}
	return nil
}
