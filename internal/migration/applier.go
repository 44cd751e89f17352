package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/example/migren/internal/logging"
)

// Applier moves the database cursor along the migration chain.
type Applier struct {
	store       Store
	toolVersion string
	logger      *slog.Logger
	newRunID    func() string
}

// NewApplier constructs an Applier that logs through slog.Default.
func NewApplier(store Store, toolVersion string) *Applier {
	return NewApplierWithLogger(store, toolVersion, nil)
}

// NewApplierWithLogger constructs an Applier with an explicit logger.
func NewApplierWithLogger(store Store, toolVersion string, logger *slog.Logger) *Applier {
	return &Applier{
		store:       store,
		toolVersion: toolVersion,
		logger:      logger,
		newRunID:    func() string { return uuid.NewString() },
	}
}

// SetRunIDGenerator replaces the uuid-based run id source.
func (a *Applier) SetRunIDGenerator(next func() string) {
	if next != nil {
		a.newRunID = next
	}
}

// Apply moves the database to target. Every script on the path and the new
// cursor are committed in one transaction; on any failure nothing is kept.
func (a *Applier) Apply(ctx context.Context, graph *Graph, target uint32) (Result, error) {
	runID := a.newRunID()
	logger := logging.Component(ctx, a.logger, "applier", "apply", "run_id", runID, "target", target)

	cursor, err := a.store.ReadCursor(ctx)
	if err != nil {
		logger.Error("failed to read migration cursor", "error", err)
		return Result{}, NewDatabaseError("", "read cursor", err)
	}

	result := Result{RunID: runID, From: cursor.LastApplied, To: target}
	if cursor.LastApplied == target {
		logger.Info("database already at requested migration", "current", cursor.LastApplied)
		return result, nil
	}

	steps, err := graph.ResolvePath(cursor.LastApplied, target)
	if err != nil {
		logger.Error("failed to resolve migration path", "current", cursor.LastApplied, "error", err)
		return result, err
	}
	result.Steps = steps

	direction := "up"
	if target < cursor.LastApplied {
		direction = "down"
	}
	logger.Info("applying migrations",
		"current", cursor.LastApplied,
		"direction", direction,
		"steps", len(steps),
	)

	startTime := time.Now()
	err = a.inTransaction(ctx, logger, func(tx Tx) error {
		for i, step := range steps {
			stepStart := time.Now()
			logger.Info("executing migration script",
				"migration_id", step.ID,
				"file", step.File,
				"position", fmt.Sprintf("%d/%d", i+1, len(steps)),
			)

			script, err := fs.ReadFile(graph.Files(), scriptPath(step.File))
			if err != nil {
				node, _ := graph.Lookup(step.ID)
				return NewFileSystemError(node, step.File, "read", err)
			}
			if err := a.execScript(ctx, logger, tx, step.File, string(script)); err != nil {
				var dbErr *DatabaseError
				if errors.As(err, &dbErr) {
					dbErr.StepID = step.ID
				}
				return err
			}

			logger.Debug("migration script executed",
				"migration_id", step.ID,
				"duration", time.Since(stepStart),
			)
		}

		if err := tx.WriteCursor(ctx, Cursor{LastApplied: target, ToolVersion: a.toolVersion}); err != nil {
			return NewDatabaseError("", "write cursor", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("migration aborted, transaction rolled back", "error", err)
		return result, err
	}

	logger.Info("migrations applied",
		"previous", cursor.LastApplied,
		"current", target,
		"duration", time.Since(startTime),
	)
	return result, nil
}

// ExecFile runs an arbitrary script in one transaction without moving the
// cursor.
func (a *Applier) ExecFile(ctx context.Context, path string) error {
	logger := logging.Component(ctx, a.logger, "applier", "exec", "file", path)

	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	err = a.inTransaction(ctx, logger, func(tx Tx) error {
		return a.execScript(ctx, logger, tx, path, string(script))
	})
	if err != nil {
		logger.Error("script failed, transaction rolled back", "error", err)
		return err
	}

	logger.Info("script executed")
	return nil
}

func (a *Applier) execScript(ctx context.Context, logger *slog.Logger, tx Tx, file, script string) error {
	for i, group := range SplitStatements(script) {
		if HasMultipleStatements(group) {
			logger.Warn("statement group contains several semicolons; some drivers run only the first statement",
				"file", file,
				"group", i+1,
			)
		}
		// Blank groups, such as the one after a trailing split directive, are
		// skipped on purpose: some drivers reject an empty query.
		if strings.TrimSpace(group) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, group); err != nil {
			return NewDatabaseError(file, fmt.Sprintf("execute statement group %d", i+1), err)
		}
	}
	return nil
}

// inTransaction runs fn inside a transaction, rolling back on error or panic.
func (a *Applier) inTransaction(ctx context.Context, logger *slog.Logger, fn func(tx Tx) error) error {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return NewDatabaseError("", "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("rollback after panic failed", "error", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return multierror.Append(err, NewDatabaseError("", "rollback transaction", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewDatabaseError("", "commit transaction", err)
	}
	return nil
}
