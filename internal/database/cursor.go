package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/example/migren/internal/logging"
	"github.com/example/migren/internal/migration"
)

// CursorTable keeps the single cursor row.
const CursorTable = "migren_data"

const createCursorTableSQL = `
CREATE TABLE IF NOT EXISTS migren_data (
    tool_version TEXT,
    last_migration_applied INTEGER
)`

const selectCursorSQL = `SELECT tool_version, last_migration_applied FROM migren_data LIMIT 2`

var _ migration.Store = (*DB)(nil)

func (d *DB) ensureCursorTable(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createCursorTableSQL); err != nil {
		return fmt.Errorf("create %s table: %w", CursorTable, err)
	}
	return nil
}

// ReadCursor returns the persisted cursor. An empty table gets the default row
// (no migration applied) inserted first.
func (d *DB) ReadCursor(ctx context.Context) (migration.Cursor, error) {
	cursor, err := d.queryCursor(ctx)
	if err == nil {
		return cursor, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return migration.Cursor{}, err
	}

	cursor = migration.Cursor{LastApplied: migration.InitialID, ToolVersion: d.toolVersion}
	if _, err := d.db.ExecContext(ctx, d.insertCursorSQL(), cursor.ToolVersion, int64(cursor.LastApplied)); err != nil {
		return migration.Cursor{}, fmt.Errorf("insert default cursor: %w", err)
	}
	logging.Component(ctx, d.logger, "database", "read_cursor").Info("initialised migren_data with default cursor")
	return cursor, nil
}

// Begin opens the transaction covering a whole apply.
func (d *DB) Begin(ctx context.Context) (migration.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, insertSQL: d.insertCursorSQL()}, nil
}

func (d *DB) insertCursorSQL() string {
	return fmt.Sprintf(
		"INSERT INTO migren_data (tool_version, last_migration_applied) VALUES (%s, %s)",
		d.dialect.placeholder(1), d.dialect.placeholder(2),
	)
}

// queryCursor reads the single cursor row. sql.ErrNoRows means the table is
// empty; a second row or a NULL counter is corruption.
func (d *DB) queryCursor(ctx context.Context) (migration.Cursor, error) {
	rows, err := d.db.QueryContext(ctx, selectCursorSQL)
	if err != nil {
		return migration.Cursor{}, fmt.Errorf("read cursor: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return migration.Cursor{}, fmt.Errorf("read cursor: %w", err)
		}
		return migration.Cursor{}, sql.ErrNoRows
	}
	cursor, err := scanCursor(rows)
	if err != nil {
		return migration.Cursor{}, err
	}
	if rows.Next() {
		return migration.Cursor{}, fmt.Errorf("%w: more than one row", migration.ErrCursorCorrupt)
	}
	if err := rows.Err(); err != nil {
		return migration.Cursor{}, fmt.Errorf("read cursor: %w", err)
	}
	return cursor, nil
}

func scanCursor(rows *sql.Rows) (migration.Cursor, error) {
	var (
		version sql.NullString
		last    sql.NullInt64
	)
	if err := rows.Scan(&version, &last); err != nil {
		return migration.Cursor{}, fmt.Errorf("read cursor: %w", err)
	}
	if !last.Valid {
		return migration.Cursor{}, fmt.Errorf("%w: last_migration_applied is NULL", migration.ErrCursorCorrupt)
	}
	if last.Int64 < 0 || last.Int64 > math.MaxUint32 {
		return migration.Cursor{}, fmt.Errorf("%w: last_migration_applied = %d", migration.ErrCursorCorrupt, last.Int64)
	}
	return migration.Cursor{LastApplied: uint32(last.Int64), ToolVersion: version.String}, nil
}

// Tx is an open apply transaction.
type Tx struct {
	tx        *sql.Tx
	insertSQL string
}

// ExecContext runs a statement group inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// WriteCursor replaces the cursor row: every row is deleted and one is inserted.
func (t *Tx) WriteCursor(ctx context.Context, cursor migration.Cursor) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM migren_data"); err != nil {
		return fmt.Errorf("clear cursor: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.insertSQL, cursor.ToolVersion, int64(cursor.LastApplied)); err != nil {
		return fmt.Errorf("insert cursor: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}
