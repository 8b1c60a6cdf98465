// Command ioms runs the outage management API and its maintenance tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ioms/backend/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:           "ioms",
		Short:         "Outage management backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger = cfg.Logging.NewLogger()
			slog.SetDefault(logger)
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, checkConflictsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
