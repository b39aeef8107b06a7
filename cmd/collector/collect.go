package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwellir-public/haproxy-collector/internal/config"
	"github.com/dwellir-public/haproxy-collector/internal/ingest"
	"github.com/dwellir-public/haproxy-collector/internal/service"
	"github.com/dwellir-public/haproxy-collector/internal/topology"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

var (
	dryRun     bool
	outputPath string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and persist the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, resolver, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		collector, cleanup, err := buildCollector(ctx, cfg, log, resolver)
		if err != nil {
			return err
		}
		defer cleanup()

		return collector.Run(ctx)
	},
}

func init() {
	collectCmd.Flags().BoolVar(&dryRun, "dry-run", false, "write a snapshot file instead of ingesting to the database")
	collectCmd.Flags().StringVar(&outputPath, "output", "topology.json", "snapshot file path for dry runs")
}

// buildCollector wires the resolver to the configured ingestion target.
// Without a database URL, or with --dry-run, entries go to a snapshot file.
func buildCollector(ctx context.Context, cfg *config.Config, log *logger.Logger, resolver *topology.Resolver) (*service.Collector, func(), error) {
	if dryRun || cfg.Database.URL == "" {
		ingestor := ingest.NewFileIngestor(outputPath, log)
		return service.NewCollector(resolver, ingestor, cfg.HAProxy.ID, log), func() {}, nil
	}

	pg, err := ingest.NewPostgresIngestor(ctx, cfg.Database.URL, cfg.Database.OwnerID, log)
	if err != nil {
		return nil, nil, err
	}

	haproxyID, err := pg.LookupInstanceID(ctx, cfg.HAProxy.Name, cfg.HAProxy.ID)
	if err != nil {
		pg.Close()
		return nil, nil, err
	}

	log.WithFields(map[string]interface{}{
		"haproxy_id": haproxyID,
		"database":   ingest.RedactDatabaseURL(cfg.Database.URL),
	}).Info("Resolved HAProxy instance")

	return service.NewCollector(resolver, pg, haproxyID, log), pg.Close, nil
}
