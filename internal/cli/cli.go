// Package cli wires the migren command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/migren/internal/config"
	"github.com/example/migren/internal/database"
	"github.com/example/migren/internal/logging"
	"github.com/example/migren/internal/migration"
)

type app struct {
	version string
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer

	cfg    config.Config
	logger *slog.Logger
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	a := &app{
		version: version,
		v:       config.NewViper(),
		stdout:  stdout,
		stderr:  stderr,
	}

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		logger := a.logger
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(stderr, nil))
		}
		logger.Error("migren failed", "error", err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "migren",
		Short:         "Move a database along a linked chain of reversible SQL migrations",
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP(config.KeyDirectory, "d", "", "migration directory (default: current directory)")
	flags.String(config.KeyDatabaseURL, "", "database url, e.g. sqlite://app.db or postgres://user@host/db")
	flags.String(config.KeyLogLevel, "info", "supported log levels are debug, info, warn and error")
	flags.String(config.KeyLogFormat, "text", "log output format: text or json")
	bindFlags(a.v, flags, config.KeyDirectory, config.KeyDatabaseURL, config.KeyLogLevel, config.KeyLogFormat)

	root.AddCommand(
		a.toCommand(),
		a.topCommand(),
		a.newCommand(),
		a.statusCommand(),
		a.execCommand(),
	)
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys ...string) {
	for _, key := range keys {
		// BindPFlag only fails for a nil flag, which would be a programming error.
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", key, err))
		}
	}
}

// setup loads configuration, builds the logger and makes sure the migration
// directory exists.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logger.With("version", a.version)
	cmd.SetContext(logging.ContextWithLogger(cmd.Context(), a.logger))

	if _, err := os.Stat(cfg.Directory); errors.Is(err, fs.ErrNotExist) {
		a.logger.Info("migration directory does not exist, creating it", "directory", cfg.Directory)
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return fmt.Errorf("create migration directory: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("stat migration directory: %w", err)
	}
	return nil
}

func (a *app) loadGraph() (*migration.Graph, error) {
	graph, err := migration.LoadGraph(a.cfg.Directory, a.version)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("manifest loaded",
		"path", migration.ManifestPath(a.cfg.Directory),
		"migrations", graph.Len(),
		"counter", graph.Counter,
	)
	return graph, nil
}

// withDatabase opens the configured database for the duration of fn.
func (a *app) withDatabase(ctx context.Context, fn func(db *database.DB) error) error {
	if err := a.cfg.RequireDatabase(); err != nil {
		return err
	}

	db, err := database.Open(ctx, a.cfg.DatabaseURL,
		database.WithLogger(a.logger),
		database.WithToolVersion(a.version),
	)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			a.logger.Error("failed to close database", "error", cerr)
		}
	}()

	return fn(db)
}
