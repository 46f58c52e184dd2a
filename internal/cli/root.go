// Package cli implements stagectl and the wiring it shares with the
// server.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/stageload/internal/config"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// submitter is recorded as created_by on manifests stagectl creates.
const submitter = "stagectl"

// RootCmd returns the stagectl command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stagectl",
		Short: "Load delimited files into PostgreSQL staging tables",
		Long: `stagectl drives the stageload ingestion pipeline from the command line.
Configuration comes from the environment and an optional .env file, the
same settings the server reads.`,
		SilenceUsage: true,
	}

	root.AddCommand(IngestCmd())
	root.AddCommand(ArchiveCmd())
	root.AddCommand(StatusCmd())
	root.AddCommand(ReportCmd())
	root.AddCommand(RetryCmd())
	root.AddCommand(RulesCmd())
	root.AddCommand(MigrateCmd())
	root.AddCommand(WatchCmd())

	return root
}

// loadConfig reads .env and the environment and configures logging.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// openApp loads configuration and wires the pipeline.
func openApp(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	app, err := Open(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return app, nil
}
