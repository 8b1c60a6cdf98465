package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ioms/backend/internal/repository"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeDB, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			return m.Run(cmd.Context())
		},
	}

	migrateStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeDB, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			versions, err := m.Applied(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
)

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
}

func openMigrator(cmd *cobra.Command) (*repository.Migrator, func(), error) {
	db, err := repository.Open(cmd.Context(), cfg.Database.DSN(), repository.PoolConfig{
		MaxOpenConns: 2,
		MaxIdleConns: 1,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return repository.NewMigrator(db, logger), func() { db.Close() }, nil
}
