package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwellir-public/haproxy-collector/internal/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run collection passes on an interval with the admin server.",
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

		var adminSrv *server.AdminServer
		if cfg.Admin.Enabled {
			adminSrv = server.New(cfg.Admin, collector, version, log)
			go func() {
				if err := adminSrv.Start(); err != nil {
					log.WithError(err).Error("Admin server failed")
					stop()
				}
			}()
		}

		log.WithField("interval", cfg.Collector.Interval.String()).Info("Starting collection loop")
		err = collector.RunLoop(ctx, cfg.Collector.Interval)

		if adminSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if shutdownErr := adminSrv.Shutdown(shutdownCtx); shutdownErr != nil {
				log.WithError(shutdownErr).Warn("Admin server shutdown failed")
			}
		}

		if errors.Is(err, context.Canceled) {
			log.Info("Collection loop stopped")
			return nil
		}
		return err
	},
}
