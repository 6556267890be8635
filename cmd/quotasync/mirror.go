package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/quotabus/internal/mirror"
	"github.com/alfredjeanlab/quotabus/internal/ui"
)

var mirrorCmd = &cobra.Command{
	Use:     "mirror",
	Short:   "Inspect the Redis quota mirror",
	GroupID: "inspect",
}

var mirrorShowCmd = &cobra.Command{
	Use:   "show <tenant>",
	Short: "Show a tenant's mirrored quota and its remaining TTL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant := args[0]
		store, err := mirror.NewRedisStore(cmd.Context(), mirror.Options{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			DB:        cfg.Redis.DB,
			Password:  cfg.Redis.Password,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Timeout:   cfg.Redis.Timeout,
		})
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("reading mirror for %s: %w", tenant, err)
		}
		ttl, err := store.TTL(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("reading TTL for %s: %w", tenant, err)
		}

		view := mirrorView{
			Tenant:     tenant,
			Key:        mirror.Key(cfg.Redis.KeyPrefix, tenant),
			Record:     *rec,
			TTLSeconds: -1,
		}
		if ttl >= 0 {
			view.TTLSeconds = int64(ttl / time.Second)
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		printMirror(os.Stdout, view)
		return nil
	},
}

type mirrorView struct {
	Tenant     string        `json:"tenant"`
	Key        string        `json:"key"`
	Record     mirror.Record `json:"record"`
	TTLSeconds int64         `json:"ttl_seconds"`
}

func printMirror(w io.Writer, v mirrorView) {
	r := v.Record
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(v.Tenant), ui.RenderMuted(v.Key))
	fmt.Fprintf(w, "  usage:        %s (%s remaining)\n", ui.RenderUsage(r.Used, r.Limit), r.Remaining)
	fmt.Fprintf(w, "  period:       %s\n", r.Period)
	if r.ResetAt != "" {
		fmt.Fprintf(w, "  resets:       %s\n", r.ResetAt)
	}
	fmt.Fprintf(w, "  last updated: %s\n", r.LastUpdated)
	fmt.Fprintf(w, "  event:        %s\n", r.SourceEventID)
	if v.TTLSeconds < 0 {
		fmt.Fprintf(w, "  ttl:          %s\n", ui.RenderWarn("none"))
	} else {
		fmt.Fprintf(w, "  ttl:          %s\n", time.Duration(v.TTLSeconds)*time.Second)
	}
}

func init() {
	mirrorCmd.AddCommand(mirrorShowCmd)
}
