package main

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/cloud-price-index/updater/store"
)

var migrateDatabaseURL string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the pricing tables when they do not exist yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(cmd.Context(), migrateDatabaseURL)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "database-url", envOr("DATABASE_URL", ""), "PostgreSQL connection string (defaults to $DATABASE_URL)")
}

func runMigrate(ctx context.Context, dsn string) error {
	if dsn == "" {
		return errors.New("--database-url or DATABASE_URL is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := store.Open(ctx, dsn, 1)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.New(db, log.StandardLogger()).Migrate(ctx); err != nil {
		return err
	}
	log.Info("Pricing tables are up to date")
	return nil
}
