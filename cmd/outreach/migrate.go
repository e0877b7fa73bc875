package main

import (
	"github.com/spf13/cobra"

	"outreach/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := db.AutoMigrateAndIndexes(a.db); err != nil {
				return err
			}
			a.log.Info().Msg("migrations applied")
			return nil
		},
	}
}
