package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const envPostgresDSN = "STOREFRONT_POSTGRES_DSN"

type migrateOptions struct {
	dsn     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &migrateOptions{}

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the storefront PostgreSQL schema",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline for the whole command")

	var upSteps, downSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: opts.withStore(func(ctx context.Context, store *postgres.Store, out io.Writer) error {
			if err := store.MigrateUp(ctx, upSteps); err != nil {
				return fmt.Errorf("migrate up failed: %w", err)
			}
			return printStatus(ctx, store, out, "migrate up ok")
		}),
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "migrations to apply (0 applies all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		Args:  cobra.NoArgs,
		RunE: opts.withStore(func(ctx context.Context, store *postgres.Store, out io.Writer) error {
			if err := store.MigrateDown(ctx, downSteps); err != nil {
				return fmt.Errorf("migrate down failed: %w", err)
			}
			return printStatus(ctx, store, out, "migrate down ok")
		}),
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: opts.withStore(func(ctx context.Context, store *postgres.Store, out io.Writer) error {
			return printStatus(ctx, store, out, "migration status")
		}),
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in catalog into the products table",
		Args:  cobra.NoArgs,
		RunE: opts.withStore(func(ctx context.Context, store *postgres.Store, out io.Writer) error {
			n, err := catalog.Seed(ctx, postgres.NewProductRepository(store))
			if err != nil {
				return fmt.Errorf("seed catalog failed: %w", err)
			}
			_, _ = fmt.Fprintf(out, "seed ok: products=%d\n", n)
			return nil
		}),
	}

	root.AddCommand(up, down, status, seed)
	return root
}

// resolveDSN берёт DSN из флага, затем из окружения.
func (o *migrateOptions) resolveDSN() (string, error) {
	dsn := strings.TrimSpace(o.dsn)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv(envPostgresDSN))
	}
	if dsn == "" {
		return "", errors.New(envPostgresDSN + " (or --dsn) is required")
	}
	return dsn, nil
}

// withStore открывает store на время команды.
func (o *migrateOptions) withStore(fn func(ctx context.Context, store *postgres.Store, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		dsn, err := o.resolveDSN()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
		defer cancel()

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer store.Close()

		return fn(ctx, store, cmd.OutOrStdout())
	}
}

func printStatus(ctx context.Context, store *postgres.Store, out io.Writer, prefix string) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, state.Version, state.Applied)
	for _, name := range state.Pending {
		_, _ = fmt.Fprintf(out, "  pending %s\n", name)
	}
	return nil
}
