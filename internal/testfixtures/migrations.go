package testfixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/migren/internal/database"
	"github.com/example/migren/internal/migration"
)

// ToolVersion is the version fixtures stamp into manifests and cursors.
const ToolVersion = "0.0.0-test"

// MigrationDir is a temporary migration directory with its manifest loaded.
type MigrationDir struct {
	Dir   string
	Graph *migration.Graph
}

// NewMigrationDir creates an empty migration directory under tb.TempDir.
func NewMigrationDir(tb testing.TB) *MigrationDir {
	tb.Helper()

	dir := filepath.Join(tb.TempDir(), "migrations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("failed to create migration directory: %v", err)
	}

	graph, err := migration.LoadGraph(dir, ToolVersion)
	if err != nil {
		tb.Fatalf("failed to load manifest: %v", err)
	}
	return &MigrationDir{Dir: dir, Graph: graph}
}

// Add appends a migration and fills its scripts with up and down.
func (m *MigrationDir) Add(tb testing.TB, name, up, down string) migration.Node {
	tb.Helper()

	node, err := migration.CreateMigration(m.Graph, name)
	if err != nil {
		tb.Fatalf("failed to create migration %q: %v", name, err)
	}
	m.WriteScript(tb, node.UpFile, up)
	m.WriteScript(tb, node.DownFile, down)
	return node
}

// WriteScript overwrites a script relative to the migration directory.
func (m *MigrationDir) WriteScript(tb testing.TB, name, content string) {
	tb.Helper()

	if err := os.WriteFile(filepath.Join(m.Dir, name), []byte(content), 0o644); err != nil {
		tb.Fatalf("failed to write %s: %v", name, err)
	}
}

// RemoveScript deletes a script relative to the migration directory.
func (m *MigrationDir) RemoveScript(tb testing.TB, name string) {
	tb.Helper()

	if err := os.Remove(filepath.Join(m.Dir, name)); err != nil {
		tb.Fatalf("failed to remove %s: %v", name, err)
	}
}

// SQLiteURL returns a sqlite:// URL for a fresh database file under tb.TempDir.
func SQLiteURL(tb testing.TB) string {
	tb.Helper()
	return "sqlite://" + filepath.Join(tb.TempDir(), "migren.db")
}

// NewSQLiteDB opens a fresh SQLite database and closes it when the test ends.
func NewSQLiteDB(tb testing.TB) *database.DB {
	tb.Helper()

	db, err := database.Open(context.Background(), SQLiteURL(tb), database.WithToolVersion(ToolVersion))
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// TableExists reports whether a SQLite table exists.
func TableExists(tb testing.TB, db *database.DB, table string) bool {
	tb.Helper()

	var count int
	err := db.SQL().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
	if err != nil {
		tb.Fatalf("failed to look up table %s: %v", table, err)
	}
	return count > 0
}
