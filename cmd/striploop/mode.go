// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/striploop/internal/config"
	"github.com/ManuGH/striploop/internal/mode"
	"github.com/ManuGH/striploop/internal/version"
)

type modeOptions struct {
	api     string
	offline bool
	timeout time.Duration
}

func newModeCmd(root *rootOptions) *cobra.Command {
	opts := &modeOptions{}
	cmd := &cobra.Command{
		Use:       "mode [video|audio]",
		Short:     "Show or switch the playback mode",
		Long:      "Without an argument, print the current mode. With one, ask the running daemon to switch.\nWith --offline, read or write the mode file directly; the daemon picks it up on its next start.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(mode.Video), string(mode.Audio)},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			if opts.offline {
				return runModeOffline(cmd.Context(), cmd.OutOrStdout(), root, target)
			}
			return runModeRemote(cmd.Context(), cmd.OutOrStdout(), opts, target)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.api, "api", "http://127.0.0.1:8080", "base URL of the running daemon")
	f.BoolVar(&opts.offline, "offline", false, "use the mode file instead of the daemon API")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func runModeOffline(ctx context.Context, out io.Writer, root *rootOptions, target string) error {
	cfg, err := config.NewLoader(root.configPath, version.Version).LoadPlayback()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store := mode.FileStore{Path: cfg.ModeFile}

	if target == "" {
		m, err := store.Read(ctx)
		if errors.Is(err, mode.ErrNoRecord) {
			fmt.Fprintf(out, "%s (default, no record)\n", mode.Video)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, m)
		return nil
	}

	m, err := mode.Parse(target)
	if err != nil {
		return err
	}
	if err := store.WriteDurable(ctx, m); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (applies on next start)\n", m)
	return nil
}

type modeReply struct {
	Mode    mode.Mode `json:"mode"`
	Active  bool      `json:"active"`
	Changed bool      `json:"changed"`
	Error   string    `json:"error"`
	Detail  string    `json:"detail"`
}

func runModeRemote(ctx context.Context, out io.Writer, opts *modeOptions, target string) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	url := strings.TrimRight(opts.api, "/") + "/api/mode"
	method := http.MethodGet
	var body io.Reader
	if target != "" {
		m, err := mode.Parse(target)
		if err != nil {
			return err
		}
		method = http.MethodPut
		payload, err := json.Marshal(map[string]string{"mode": string(m)})
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var reply modeReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon refused (%s): %s %s", resp.Status, reply.Error, reply.Detail)
	}

	state := "stopped"
	if reply.Active {
		state = "active"
	}
	switch {
	case target == "":
		fmt.Fprintf(out, "%s (%s)\n", reply.Mode, state)
	case reply.Changed:
		fmt.Fprintf(out, "switched to %s (%s)\n", reply.Mode, state)
	default:
		fmt.Fprintf(out, "already %s (%s)\n", reply.Mode, state)
	}
	return nil
}
