package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/quotabus/internal/config"
	"github.com/alfredjeanlab/quotabus/internal/ui"
)

var (
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "quotasync <command>",
	Short:        "Mirror quota events from JetStream into the gateway's Redis quota store",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		l, err := newLogger(os.Stderr, c.Log.Level, c.Log.Format)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q (must be text or json)", format)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "inspect", Title: "Inspect:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(helpFunc)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(mirrorCmd)
}

func main() {
	// A missing .env is fine; the environment and defaults still apply.
	_ = godotenv.Load()
	ui.Init()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
