package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/quotabus/internal/events"
	"github.com/alfredjeanlab/quotabus/internal/quota"
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Publish a quota event",
	Long: `Publishes a single quota event on the configured subject, the same way the
LLM proxy does after each request. Useful for seeding a mirror or checking the
pipeline end to end.

With --dry-run the envelope is printed instead of published.`,
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, u, err := usageFromFlags(cmd)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx := events.WithRequestMeta(cmd.Context(), meta)
		env := quota.NewEvent(ctx, u)

		var pub events.Publisher
		if dryRun {
			pub = &events.NoopPublisher{Logger: logger}
		} else {
			conn, err := events.Connect(cfg.NATS.URL, cfg.NATS.ConnectTimeout, logger)
			if err != nil {
				return err
			}
			defer conn.Close()
			pub = events.NewJetStreamPublisher(conn, cfg.NATS.PublishTimeout)
		}
		defer pub.Close()

		if err := pub.Publish(ctx, cfg.NATS.Subject, env); err != nil {
			return err
		}

		if jsonOutput || dryRun {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(env)
		}
		fmt.Printf("published %s on %s (tenant %s)\n", env.EventID, cfg.NATS.Subject, env.Tenant())
		return nil
	},
}

func usageFromFlags(cmd *cobra.Command) (events.RequestMeta, quota.Usage, error) {
	f := cmd.Flags()
	var meta events.RequestMeta
	meta.TenantID, _ = f.GetString("tenant")
	meta.PlatformID, _ = f.GetString("platform")
	meta.Actor, _ = f.GetString("actor")
	meta.CorrelationID, _ = f.GetString("correlation")
	if meta.TenantID == "" {
		return meta, quota.Usage{}, fmt.Errorf("--tenant is required")
	}

	var u quota.Usage
	u.Limit, _ = f.GetInt64("limit")
	u.Used, _ = f.GetInt64("used")
	u.Period, _ = f.GetString("period")
	u.Model, _ = f.GetString("model")
	if f.Changed("remaining") {
		u.Remaining, _ = f.GetInt64("remaining")
	} else {
		u.Remaining = max(u.Limit-u.Used, 0)
	}

	if s, _ := f.GetString("reset-at"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return meta, u, fmt.Errorf("--reset-at: %w", err)
		}
		u.ResetAt = t
	}
	return meta, u, nil
}

func addEmitFlags(cmd *cobra.Command) {
	cmd.Flags().String("tenant", "", "tenant ID (required)")
	cmd.Flags().String("platform", "", "platform ID")
	cmd.Flags().String("actor", "", "acting user")
	cmd.Flags().String("correlation", "", "correlation ID (generated when empty)")
	cmd.Flags().Int64("limit", 0, "quota limit")
	cmd.Flags().Int64("used", 0, "quota used")
	cmd.Flags().Int64("remaining", 0, "quota remaining (default limit-used)")
	cmd.Flags().String("period", quota.PeriodMonthly, "quota period: hourly, daily or monthly")
	cmd.Flags().String("reset-at", "", "RFC 3339 time the quota resets")
	cmd.Flags().String("model", "", "model name")
	cmd.Flags().Bool("dry-run", false, "print the event instead of publishing it")
}

func init() {
	addEmitFlags(emitCmd)
}
