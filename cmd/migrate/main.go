// Command migrate applies the revision catalog to the configured
// database: upgrade, downgrade, status and head repair.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"mergerdesk.io/internal/migrate"
)

func main() {
	log.SetFlags(0)

	var dsn string

	runner := func() (*migrate.Runner, func(), error) {
		if dsn == "" {
			dsn = os.Getenv("MERGERDESK_PG_DSN")
		}
		if dsn == "" {
			return nil, nil, fmt.Errorf("missing DSN: provide via --dsn or MERGERDESK_PG_DSN")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		catalog, err := migrate.AppCatalog()
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("catalog: %w", err)
		}
		return migrate.NewRunner(db, catalog), func() { db.Close() }, nil
	}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the database schema revision graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to MERGERDESK_PG_DSN)")

	root.AddCommand(&cobra.Command{
		Use:   "up [revision]",
		Short: "Upgrade to a revision, or to the single head",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			r, closeDB, err := runner()
			if err != nil {
				return err
			}
			defer closeDB()
			if len(args) == 1 {
				return r.Upgrade(ctx, args[0])
			}
			return r.UpgradeAll(ctx)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down <revision>",
		Short: "Downgrade to a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			r, closeDB, err := runner()
			if err != nil {
				return err
			}
			defer closeDB()
			return r.Downgrade(ctx, args[0])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the stored head and pending revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			r, closeDB, err := runner()
			if err != nil {
				return err
			}
			defer closeDB()
			st, err := r.Status(ctx)
			if err != nil {
				return err
			}
			head := st.Head
			if head == "" {
				head = "(none)"
			}
			fmt.Printf("head: %s\n", head)
			fmt.Printf("revisions: %d total, %d pending\n", st.Total, len(st.Pending))
			for _, id := range st.Pending {
				fmt.Printf("  pending: %s\n", id)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "repair-head <survivor>",
		Short: "Rewrite a head that references a pruned revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			r, closeDB, err := runner()
			if err != nil {
				return err
			}
			defer closeDB()
			rewritten, err := r.RepairHead(ctx, args[0])
			if err != nil {
				return err
			}
			if rewritten {
				fmt.Printf("head rewritten to %s\n", args[0])
			} else {
				fmt.Println("head resolves; nothing to repair")
			}
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}
