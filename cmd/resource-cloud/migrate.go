package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/infrastructure"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations, including River's tables",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				db, err := infrastructure.NewDatabaseClients(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()
				return db.AutoMigrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the application schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := migrations.Down(cfg.Database.DSN()); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				logger.Info("Schema rolled back", zap.String("database", cfg.Database.Database))
				return nil
			},
		},
	)
	return cmd
}
