package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/migren/internal/database"
	"github.com/example/migren/internal/migration"
)

func (a *app) toCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "to <migration-id>",
		Short: "Apply or revert migrations until the database is at the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid migration id %q: %w", args[0], err)
			}
			return a.migrateTo(cmd.Context(), func(*migration.Graph) uint32 { return uint32(target) })
		},
	}
}

func (a *app) topCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.migrateTo(cmd.Context(), func(graph *migration.Graph) uint32 { return graph.Counter })
		},
	}
}

func (a *app) migrateTo(ctx context.Context, target func(*migration.Graph) uint32) error {
	graph, err := a.loadGraph()
	if err != nil {
		return err
	}

	return a.withDatabase(ctx, func(db *database.DB) error {
		result, err := migration.NewApplierWithLogger(db, a.version, a.logger).Apply(ctx, graph, target(graph))
		if err != nil {
			return err
		}
		if len(result.Steps) == 0 {
			fmt.Fprintf(a.stdout, "database already at migration %d\n", result.To)
			return nil
		}
		fmt.Fprintf(a.stdout, "database moved from migration %d to %d (%d scripts)\n", result.From, result.To, len(result.Steps))
		return nil
	})
}

func (a *app) newCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Append a migration to the manifest and create empty up/down scripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			graph, err := a.loadGraph()
			if err != nil {
				return err
			}

			node, err := migration.CreateMigration(graph, strings.Join(args, "_"))
			if err != nil {
				return err
			}
			a.logger.Info("migration created", "migration_id", node.ID, "name", node.Name)
			fmt.Fprintf(a.stdout, "created migration %d\n  %s\n  %s\n",
				node.ID,
				filepath.Join(graph.Dir(), node.UpFile),
				filepath.Join(graph.Dir(), node.DownFile),
			)
			return nil
		},
	}
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the manifest next to the migration the database is at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			graph, err := a.loadGraph()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withDatabase(ctx, func(db *database.DB) error {
				status, err := migration.Inspect(ctx, db, graph)
				if err != nil {
					return err
				}
				return a.printStatus(status)
			})
		},
	}
}

func (a *app) printStatus(status migration.Status) error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)

	startID := "-"
	if status.ManifestStartID != nil {
		startID = strconv.FormatUint(uint64(*status.ManifestStartID), 10)
	}

	fmt.Fprintln(w, "manifest\t")
	fmt.Fprintf(w, "  tool version\t%s\n", status.ManifestToolVersion)
	fmt.Fprintf(w, "  migrations\t%d\n", status.Migrations)
	fmt.Fprintf(w, "  start id\t%s\n", startID)
	fmt.Fprintf(w, "  counter\t%d\n", status.ManifestCounter)

	fmt.Fprintln(w, "database\t")
	fmt.Fprintf(w, "  tool version\t%s\n", status.Cursor.ToolVersion)
	fmt.Fprintf(w, "  last applied\t%d\n", status.Cursor.LastApplied)

	switch {
	case !status.CursorKnown:
		fmt.Fprintln(w, "  current\tunknown to the manifest")
	case status.Current == nil:
		fmt.Fprintln(w, "  current\tinitial state")
	default:
		fmt.Fprintf(w, "  current\t%s\n", status.Current.Name)
		fmt.Fprintf(w, "  up digest\t%s\n", orDash(status.UpDigest))
		fmt.Fprintf(w, "  down digest\t%s\n", orDash(status.DownDigest))
	}

	if status.PathErr != nil {
		fmt.Fprintf(w, "  pending\tchain broken: %v\n", status.PathErr)
	} else if status.CursorKnown {
		fmt.Fprintf(w, "  pending\t%d\n", status.Pending)
	}

	return w.Flush()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func (a *app) execCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <file>",
		Short: "Run a SQL script in one transaction without moving the migration cursor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !filepath.IsAbs(path) {
				path = filepath.Join(a.cfg.Directory, path)
			}

			ctx := cmd.Context()
			return a.withDatabase(ctx, func(db *database.DB) error {
				if err := migration.NewApplierWithLogger(db, a.version, a.logger).ExecFile(ctx, path); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "executed %s\n", path)
				return nil
			})
		},
	}
}
