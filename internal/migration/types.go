package migration

import (
	"context"
	"database/sql"
)

// InitialID identifies the synthetic node that stands for an empty database.
const InitialID uint32 = 0

// Node is one reversible change in the migration chain.
type Node struct {
	ID       uint32  `json:"id"`
	Name     string  `json:"name"`
	UpFile   string  `json:"up_migration_file"`   // relative to the migration directory
	DownFile string  `json:"down_migration_file"` // relative to the migration directory
	PrevID   *uint32 `json:"prev_migration_id"`
	NextID   *uint32 `json:"next_migration_id"`
}

// Step is a single script to execute while moving the cursor.
type Step struct {
	ID   uint32
	File string
}

// Cursor is the position recorded inside the target database.
type Cursor struct {
	LastApplied uint32
	ToolVersion string
}

// CursorReader reads the persisted cursor.
type CursorReader interface {
	// ReadCursor returns the current cursor, inserting the default row when the
	// table is still empty.
	ReadCursor(ctx context.Context) (Cursor, error)
}

// Store is the database side of an apply.
type Store interface {
	CursorReader

	// Begin opens the transaction that covers a whole apply.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one open transaction against the target database.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)

	// WriteCursor replaces the persisted cursor row.
	WriteCursor(ctx context.Context, cursor Cursor) error

	Commit() error
	Rollback() error
}

// Result summarises a finished apply.
type Result struct {
	RunID string
	From  uint32
	To    uint32
	Steps []Step
}

func idPtr(id uint32) *uint32 {
	return &id
}
