// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync pass against the backend",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "embeddings",
			Short: "Pull the reference embeddings and replace the local snapshot",
			RunE:  runSyncEmbeddings,
		},
		&cobra.Command{
			Use:   "events",
			Short: "Push pending clock events to the backend",
			RunE:  runSyncEvents,
		},
	)

	return cmd
}

func runSyncEmbeddings(cmd *cobra.Command, _ []string) error {
	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		rec, err := t.RequireReconciler()
		if err != nil {
			return err
		}
		n, err := rec.SyncEmbeddings(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored %d reference embeddings\n", n)
		return nil
	})
}

func runSyncEvents(cmd *cobra.Command, _ []string) error {
	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		rec, err := t.RequireReconciler()
		if err != nil {
			return err
		}
		res, err := rec.PushEvents(ctx)

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Synced %d, failed %d, deferred %d\n", res.Synced, len(res.Failed), res.Deferred)
		if len(res.Failed) > 0 {
			_, _ = fmt.Fprintf(out, "Failed events (kept queued): %s\n", strings.Join(res.Failed, ", "))
		}
		if len(res.MarkFailed) > 0 {
			_, _ = fmt.Fprintf(out, "Accepted by backend but not marked locally: %s\n", strings.Join(res.MarkFailed, ", "))
		}
		if res.Deferred > 0 {
			_, _ = fmt.Fprintln(out, "Backend unreachable; remaining events stay queued")
		}
		return err
	})
}
