package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/event-booking/internal/app"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending MySQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreMySQL {
				return fmt.Errorf("migrate needs STORE_DRIVER=mysql, got %q", cfg.StoreDriver)
			}
			db, err := database.Open(app.DatabaseOptions(cfg))
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer db.Close()
			return database.Migrate(db.DB, config.NewLogger(cfg))
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Open(app.DatabaseOptions(cfg))
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer db.Close()
			return database.MigrationStatus(db.DB)
		},
	})
	return cmd
}
