// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show terminal status",
		Long:  "Show the local snapshot and queue state, and whether the local API is serving.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "local API address to check (defaults to server.listen)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		st, err := t.Service.Status(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Device:     %s\n", st.DeviceID)
		_, _ = fmt.Fprintf(out, "Snapshot:   %d records %v\n", st.Records, st.Dimensions)
		_, _ = fmt.Fprintf(out, "Pending:    %d events\n", st.Pending)
		_, _ = fmt.Fprintf(out, "Threshold:  %.2f\n", st.Threshold)

		backend := t.Config.Remote.BaseURL
		if backend == "" {
			backend = "none (offline only)"
		}
		_, _ = fmt.Fprintf(out, "Backend:    %s\n", backend)

		addr, _ := cmd.Flags().GetString("address")
		if addr == "" {
			addr = t.Config.Server.Listen
		}
		_, _ = fmt.Fprintf(out, "Local API:  %s\n", checkLocalAPI(addr))
		return nil
	})
}

// checkLocalAPI reports whether a terminal is serving at addr.
func checkLocalAPI(addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newAPIClient(addr).getJSON("/health", &body); err != nil {
		if pcerr.HasCode(err, pcerr.CodeCLITerminalNotRunning) {
			return fmt.Sprintf("not running at %s (run 'punchcard start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}
