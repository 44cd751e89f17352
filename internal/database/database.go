// Package database connects migren to the target database and keeps the
// migren_data cursor table.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/example/migren/internal/logging"
)

// Dialect selects driver and SQL flavour.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrUnsupportedURL is returned for database URLs no driver can handle.
var ErrUnsupportedURL = errors.New("unsupported database url")

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ParseURL maps a database URL onto a dialect and the DSN its driver expects.
func ParseURL(raw string) (Dialect, string, error) {
	url := strings.TrimSpace(raw)
	lower := strings.ToLower(url)

	switch {
	case url == "":
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, url, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return sqliteDSN(url[len("sqlite://"):])
	case strings.HasPrefix(lower, "sqlite:"):
		return sqliteDSN(url[len("sqlite:"):])
	case strings.HasPrefix(lower, "file:"), url == ":memory:":
		return DialectSQLite, url, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return DialectSQLite, url, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
}

func sqliteDSN(path string) (Dialect, string, error) {
	if path == "" {
		return "", "", fmt.Errorf("%w: sqlite url without path", ErrUnsupportedURL)
	}
	return DialectSQLite, path, nil
}

// Option customises Open.
type Option func(*DB)

// WithLogger sets the logger used by the connection.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithToolVersion sets the version written into a freshly created cursor row.
func WithToolVersion(version string) Option {
	return func(d *DB) {
		d.toolVersion = version
	}
}

// WithSQLiteConfig overrides the SQLite connection settings.
func WithSQLiteConfig(cfg SQLiteConfig) Option {
	return func(d *DB) {
		d.sqlite = cfg
	}
}

// DB is a connection to the database being migrated.
type DB struct {
	db          *sql.DB
	dialect     Dialect
	toolVersion string
	sqlite      SQLiteConfig
	logger      *slog.Logger
}

// Open connects to the database behind url and makes sure the migren_data
// table exists.
func Open(ctx context.Context, url string, opts ...Option) (*DB, error) {
	dialect, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	d := &DB{
		dialect: dialect,
		sqlite:  DefaultSQLiteConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	logger := logging.Component(ctx, d.logger, "database", "open", "dialect", string(dialect))

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	d.db = db

	if dialect == DialectSQLite {
		if err := d.sqlite.apply(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite database: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	logger.Info("connected to database")

	if err := d.ensureCursorTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("migren_data table ready")

	return d, nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Dialect reports which database flavour is connected.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}
