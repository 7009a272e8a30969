// Package main is the schema migration tool for FinDoc.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/findoc/internal/store"
	"github.com/lpernett/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	databaseURL string
	dir         string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the FinDoc database schema",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	root.PersistentFlags().StringVar(&opts.dir, "dir", envOr("MIGRATIONS_DIR", "migrations"), "directory holding the migration files")

	root.AddCommand(newUpCmd(opts), newDownCmd(opts), newVersionCmd(opts))
	return root
}

func newUpCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := store.RunMigrations(opts.databaseURL, opts.dir); err != nil {
				return err
			}
			slog.Info("migrations applied", "dir", opts.dir)
			return nil
		},
	}
}

func newDownCmd(opts *options) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := store.RollbackMigrations(opts.databaseURL, opts.dir, steps); err != nil {
				return err
			}
			slog.Info("migrations rolled back", "steps", steps)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, dirty, err := store.MigrationVersion(opts.databaseURL, opts.dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
			return nil
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
