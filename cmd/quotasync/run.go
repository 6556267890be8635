package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/quotabus/internal/quota"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the quota sync service until SIGINT or SIGTERM",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting quota sync",
			"nats_url", cfg.NATS.URL,
			"redis_host", cfg.Redis.Host,
			"stream", cfg.NATS.Stream,
			"consumer", cfg.NATS.Consumer)

		svc := quota.NewService(cfg, logger)
		if err := svc.Run(ctx); err != nil {
			logger.Error("quota sync failed to start", "err", err)
			return err
		}
		return nil
	},
}
