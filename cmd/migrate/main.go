package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tvshelf.org/internal/migrate"
	"tvshelf.org/internal/obs"
	"tvshelf.org/internal/store/pg"
)

var (
	dsn            string
	migrationsPath string
	seedsPath      string
	timeout        time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply tvshelf database migrations and seeds",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
		applied, err := mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
		if err == nil && len(applied) == 0 {
			fmt.Println("schema is up to date")
		}
		return err
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
		name, err := mgr.Down(ctx)
		if err != nil {
			return err
		}
		fmt.Println("rolled back", name)
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied migrations in order",
	RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, item := range history {
			fmt.Println(item)
		}
		return nil
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply seed files that have not run yet",
	RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
		applied, err := mgr.Seed(ctx)
		for _, name := range applied {
			fmt.Println("seeded", name)
		}
		return err
	}),
}

func withManager(run func(context.Context, *migrate.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if dsn == "" {
			return fmt.Errorf("missing DSN: provide via --dsn or TVSHELF_PG_DSN")
		}
		store, err := pg.Open(dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		mgr := migrate.NewManager(store.DB(), source(migrationsPath, migrate.Migrations()), source(seedsPath, migrate.Seeds()),
			migrate.WithLogger(obs.Logger()))
		if err := run(ctx, mgr); err != nil {
			return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
		}
		return nil
	}
}

// source prefers an on-disk directory over the embedded files.
func source(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("TVSHELF_PG_DSN"), "PostgreSQL DSN")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "migrations", "", "Directory of *.up.sql/*.down.sql files (default: embedded)")
	rootCmd.PersistentFlags().StringVar(&seedsPath, "seeds", "", "Directory of seed *.sql files (default: embedded)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline")
	rootCmd.AddCommand(upCmd, downCmd, statusCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
