// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/striploop/internal/config"
	"github.com/ManuGH/striploop/internal/daemon"
	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/version"
)

// Exit codes of the play command. serve uses 0 and 1 only.
const (
	exitOK      = 0
	exitFailure = 1
	exitNoMedia = 2
	exitLaunch  = 3
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "striploop",
		Short:         "Unattended media player for strip displays",
		Long:          "striploop loops video or audio on a dedicated display device and accepts new media over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(opts),
		newPlayCmd(opts),
		newModeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// execute runs the CLI and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func main() {
	// Safe defaults until a command has loaded its configuration.
	xglog.Configure(xglog.Config{Level: "info", Version: version.Version})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func configureLogging(opts *rootOptions, cfg config.Config) {
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	xglog.Configure(xglog.Config{Level: level, Version: cfg.Version})
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the player daemon",
		Long:  "Start the persisted playback mode, the ingest worker and the HTTP API, and run until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	loader := config.NewLoader(opts.configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(opts, cfg)
	logger := xglog.WithComponent("daemon")

	source := "env+defaults"
	if opts.configPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", opts.configPath).
		Msg("configuration loaded")
	for _, key := range loader.UnknownEnvKeys() {
		logger.Warn().Str("key", key).Msg("ignoring unknown environment override")
	}

	app, err := daemon.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize daemon: %w", err)
	}
	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("striploop stopped")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
