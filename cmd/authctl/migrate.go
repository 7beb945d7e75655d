package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authdata/internal/config"
	migrations "github.com/dropDatabas3/authdata/migrations/postgres"
)

func newMigrateCmd() *cobra.Command {
	var configPath, dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				dsn = cfg.Store.Postgres.DSN
			}
			if dsn == "" {
				return fmt.Errorf("falta DSN (flag --dsn o store.postgres.dsn)")
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Apply(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", envOr("AUTHDATA_CONFIG", "configs/authdata.yaml"), "Path to YAML config")
	cmd.Flags().StringVar(&dsn, "dsn", envOr("AUTHDATA_POSTGRES_DSN", ""), "Postgres DSN")
	return cmd
}
