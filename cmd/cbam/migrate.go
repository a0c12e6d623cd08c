package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/repository"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the history store migrations",
		Long: `migrate applies the embedded schema migrations to the database named by
--dsn or database.dsn. postgres:// DSNs use PostgreSQL; anything else is a
SQLite file path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(dsn) == "" {
				dsn = cfg.Database.DSN
			}
			if repository.DialectOf(dsn) == repository.DialectNone {
				return common.InvalidArgumentError("no database configured (--dsn, CBAM_DATABASE_DSN or DB_URL)")
			}
			if err := repository.Migrate(dsn, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", repository.DialectOf(dsn))
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (overrides config)")
	return cmd
}
