package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jadapache/raices-vivas/adapters/pgx"
	"github.com/jadapache/raices-vivas/internal/config"
)

var migratePrint bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostgreSQL tables",
	Long: `Apply the schema to the database named by DATABASE_URL (or
storage.database_url). The statements are idempotent, so running
migrate twice is harmless.

Example:
  raices migrate --config raices.yaml
  raices migrate --print > schema.sql`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "Print the schema instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		_, err := fmt.Fprint(cmd.OutOrStdout(), pgx.Schema())
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.StoragePostgres {
		return errors.New("migrate needs storage.driver postgres")
	}

	db, err := pgx.Connect(cmd.Context(), cfg.Storage.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
	return nil
}
