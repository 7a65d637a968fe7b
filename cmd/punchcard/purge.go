// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"
	"time"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete synced events older than a retention window",
		Long:  "Delete events the backend has acknowledged. Pending events are never removed.",
		RunE:  runPurge,
	}

	cmd.Flags().Duration("older-than", 30*24*time.Hour, "remove events synced longer ago than this")

	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	age, _ := cmd.Flags().GetDuration("older-than")
	if age < 0 {
		return pcerr.New(pcerr.CodeCLIInputInvalid, "--older-than must not be negative")
	}

	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		n, err := t.Service.PurgeSynced(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d synced events\n", n)
		return nil
	})
}
