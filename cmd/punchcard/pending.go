// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List clock events waiting to be synced",
		RunE:  runPending,
	}
}

func runPending(cmd *cobra.Command, _ []string) error {
	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		events, err := t.Service.Pending(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			_, _ = fmt.Fprintln(out, "No pending events.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tIDENTITY\tKIND\tMETHOD\tEVENT TIME")
		for _, ev := range events {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				ev.ID, ev.Identity, ev.Kind, ev.Method, ev.EventTime.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}
