package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"certledger/internal/app"
	"certledger/internal/platform/config"
	"certledger/internal/platform/logger"
)

const programName = "certctl"

var globalFlags = struct {
	config string
	debug  bool
	json   bool
}{}

func main() {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Browse and revoke ledger certificates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.config, "config", os.Getenv("CERTLEDGER_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&globalFlags.json, "json", false, "print JSON instead of a table")

	root.AddCommand(
		ownerCommand(),
		recentCommand(),
		showCommand(),
		revokeCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the service graph, and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(globalFlags.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if globalFlags.debug {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level, "text")
	slog.SetDefault(log)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Debug(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		log.Warn("set maxprocs", "error", err)
	}

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("cleanup failed", "error", err)
		}
	}()
	return fn(ctx, a)
}
