package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/quotabus/internal/events"
	"github.com/alfredjeanlab/quotabus/internal/quota"
	"github.com/alfredjeanlab/quotabus/internal/ui"
)

type streamResult struct {
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	MaxAge   string   `json:"max_age"`
	Declared bool     `json:"declared"`
}

var streamsCmd = &cobra.Command{
	Use:     "streams",
	Short:   "Create or update the canonical JetStream streams",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := events.Connect(cfg.NATS.URL, cfg.NATS.ConnectTimeout, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		specs := events.DefaultStreams()
		if q := quota.StreamSpec(cfg); q.Name != events.QuotasStream.Name {
			specs = append(specs, q)
		}

		results := make([]streamResult, 0, len(specs))
		failed := 0
		for _, d := range events.DeclareStreams(cmd.Context(), conn.JetStream(), logger, specs...) {
			if !d.OK {
				failed++
			}
			results = append(results, streamResult{
				Name:     d.Spec.Name,
				Subjects: d.Spec.Subjects,
				MaxAge:   d.Spec.MaxAge.String(),
				Declared: d.OK,
			})
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		} else {
			printStreams(os.Stdout, results)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d streams could not be declared", failed, len(specs))
		}
		return nil
	},
}

func printStreams(w io.Writer, results []streamResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STREAM\tSUBJECTS\tMAX AGE\tSTATUS")
	for _, r := range results {
		status := ui.RenderOK("ok")
		if !r.Declared {
			status = ui.RenderFail("failed")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, strings.Join(r.Subjects, ","), r.MaxAge, status)
	}
	tw.Flush()
}
