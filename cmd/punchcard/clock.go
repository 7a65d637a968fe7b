// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/punchcard-dev/punchcard/internal/store"
	"github.com/punchcard-dev/punchcard/internal/terminal"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
)

func newClockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clock <in|out>",
		Short: "Queue a clock-in or clock-out event",
		Long: "Queue a clock event for --identity (manual entry) or for whoever matches --vector. " +
			"The event is stored locally and pushed on the next sync.",
		Args: cobra.ExactArgs(1),
		RunE: runClock,
	}

	cmd.Flags().String("identity", "", "identity to clock (manual entry)")
	cmd.Flags().String("vector", "", "probe vector file (JSON array), or - for stdin")
	cmd.Flags().String("method", string(store.AuthMethodPIN), "auth method for manual entries (PIN or FACE)")
	cmd.Flags().String("at", "", "event time as RFC 3339 (default now)")
	cmd.MarkFlagsMutuallyExclusive("identity", "vector")
	cmd.MarkFlagsOneRequired("identity", "vector")

	return cmd
}

func runClock(cmd *cobra.Command, args []string) error {
	kind, err := store.ParseEventKind(args[0])
	if err != nil {
		return err
	}
	methodFlag, _ := cmd.Flags().GetString("method")
	method, err := store.ParseAuthMethod(methodFlag)
	if err != nil {
		return err
	}

	var eventTime time.Time
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		if eventTime, err = time.Parse(time.RFC3339, at); err != nil {
			return pcerr.Errorf(pcerr.CodeCLIInputInvalid, "parsing --at: %w", err)
		}
	}

	var probe []float32
	if path, _ := cmd.Flags().GetString("vector"); path != "" {
		if probe, err = readVector(cmd.InOrStdin(), path); err != nil {
			return err
		}
	}

	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		out := cmd.OutOrStdout()

		if probe != nil {
			ev, res, err := t.Service.ClockByFace(ctx, probe, kind, eventTime)
			if err != nil {
				if pcerr.IsNotFound(err) {
					_, _ = fmt.Fprintln(out, "No match, nothing queued")
				}
				return err
			}
			_, _ = fmt.Fprintf(out, "Queued %s for %s (confidence %.4f): %s\n", ev.Kind, ev.Identity, res.Confidence, ev.ID)
			return nil
		}

		identity, _ := cmd.Flags().GetString("identity")
		ev, err := t.Service.Clock(ctx, terminal.ClockRequest{
			Identity:  identity,
			Kind:      kind,
			Method:    method,
			EventTime: eventTime,
		})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Queued %s for %s: %s\n", ev.Kind, ev.Identity, ev.ID)
		return nil
	})
}
