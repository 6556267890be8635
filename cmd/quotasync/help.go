package main

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/quotabus/internal/config"
	"github.com/alfredjeanlab/quotabus/internal/ui"
)

var (
	reHeader = regexp.MustCompile(`(?m)^([A-Z][A-Za-z ]*:)$`)
	// Command and variable names in two-space indented listings.
	reEntry = regexp.MustCompile(`(?m)^(  )([a-z][a-z-]*|[A-Z][A-Z_]+)(  )`)
)

// helpFunc prints cobra's usage and, for the root command, the environment
// variables the service reads together with their defaults.
func helpFunc(cmd *cobra.Command, args []string) {
	orig := cmd.OutOrStdout()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	_ = cmd.Usage()
	cmd.SetOut(orig)

	if !cmd.HasParent() {
		buf.WriteString(envHelp())
	}

	text := buf.String()
	if ui.ShouldUseColor(os.Stdout) {
		text = colorizeHelp(text)
	}
	fmt.Fprint(orig, text)
}

func envHelp() string {
	d := config.Defaults()
	rows := [][2]string{
		{"QUOTASYNC_CONFIG", "optional TOML file with base settings"},
		{"NATS_URL", d.NATS.URL},
		{"NATS_STREAM", d.NATS.Stream},
		{"NATS_SUBJECT", d.NATS.Subject},
		{"NATS_CONSUMER", d.NATS.Consumer},
		{"NATS_MAX_DELIVER", strconv.Itoa(d.NATS.MaxDeliver)},
		{"REDIS_HOST", d.Redis.Host},
		{"REDIS_PORT", strconv.Itoa(d.Redis.Port)},
		{"REDIS_KEY_PREFIX", d.Redis.KeyPrefix},
		{"LOG_LEVEL", d.Log.Level},
		{"LOG_FORMAT", d.Log.Format},
	}

	var b strings.Builder
	b.WriteString("\nEnvironment:\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\n", r[0], r[1])
	}
	tw.Flush()
	return b.String()
}

func colorizeHelp(s string) string {
	s = reHeader.ReplaceAllStringFunc(s, ui.RenderAccent)
	return reEntry.ReplaceAllStringFunc(s, func(match string) string {
		parts := reEntry.FindStringSubmatch(match)
		return parts[1] + ui.RenderCommand(parts[2]) + parts[3]
	})
}
