// cmd/root.go
package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/apiclient"
	"github.com/gewnthar/sanctions/config"
	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/logging"
	"github.com/gewnthar/sanctions/metrics"
	"github.com/gewnthar/sanctions/services"
)

var (
	configPath    string
	restoreLogger func()
)

var rootCmd = &cobra.Command{
	Use:   "sanctions",
	Short: "Sanctions screening service with a local SDN fallback",
	Long: "Screens individuals against the consolidated screening list API and " +
		"answers from a locally imported snapshot when the API is unavailable.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		logger, err := logging.New(config.AppConfig.Logging.Level, config.AppConfig.Logging.Production)
		if err != nil {
			return err
		}
		restoreLogger = logging.Install(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if restoreLogger != nil {
			restoreLogger()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: search standard locations)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(statusCmd)
}

// app holds the wired collaborators shared by the subcommands.
type app struct {
	cfg      config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	snaps    *database.SnapshotStore
	failures *database.CheckFailureStore
	sources  *database.ExportSourceStore
	importer *services.FallbackImporter
	matcher  *services.FallbackMatcher
	job      *services.FallbackJob
	checker  *services.SDNCheckService
}

// openApp connects to the database, makes sure the schema exists and wires
// the services. Callers must defer database.CloseDB.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.AppConfig
	zap.S().Infof("Configuration loaded. Server port: %s, DB driver: %s", cfg.Server.Port, cfg.Database.Driver)

	if err := database.InitDB(cfg.Database); err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	dialect, err := database.DialectFor(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, database.DB, dialect); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.snaps = database.NewSnapshotStore(database.DB, dialect)
	a.failures = database.NewCheckFailureStore(database.DB)
	a.sources = database.NewExportSourceStore(database.DB, dialect)
	a.importer = services.NewFallbackImporter(a.snaps)
	a.matcher = services.NewFallbackMatcher(a.snaps, a.metrics)
	a.job = services.NewFallbackJob(cfg.Export, a.importer, a.snaps, services.NewHeartbeat(cfg.Heartbeat), a.metrics).
		WithSourceStatus(a.sources)

	sdn := apiclient.NewSDNClient(cfg.SDNAPI.URL, cfg.SDNAPI.Key, cfg.SDNAPI.Lists, cfg.SDNAPI.Timeout)
	a.checker = services.NewSDNCheckService(sdn, a.matcher, a.failures, a.metrics)
	return a, nil
}
