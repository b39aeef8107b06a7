package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwellir-public/haproxy-collector/internal/config"
	"github.com/dwellir-public/haproxy-collector/internal/dataplane"
	"github.com/dwellir-public/haproxy-collector/internal/topology"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "haproxy-collector",
	Short: "Collect the effective domain-to-server routing table from a HAProxy instance.",
	Long: `haproxy-collector reads a HAProxy instance's live configuration through
the Data Plane API, reconstructs which domains route to which server
addresses, and persists the result to the inventory database or a local
snapshot file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to configuration file (default: $CONFIG_FILE)")
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the shared components of both the
// collect and serve commands
func setup() (*config.Config, *logger.Logger, *topology.Resolver, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := dataplane.NewClient(dataplane.Config{
		URL:               cfg.HAProxy.URL,
		Username:          cfg.HAProxy.Username,
		Password:          cfg.HAProxy.Password,
		Timeout:           cfg.HAProxy.Timeout,
		RequestsPerSecond: cfg.HAProxy.RequestsPerSecond,
		Burst:             cfg.HAProxy.Burst,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}

	resolver := topology.NewResolver(client, topology.Config{
		ManagedSuffix:        cfg.Collector.ManagedSuffix,
		MaxConcurrentFetches: cfg.Collector.MaxConcurrentFetches,
	}, log)

	return cfg, log, resolver, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
