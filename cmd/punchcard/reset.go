// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the local reference embeddings",
		Long:  "Remove the local embedding snapshot. Queued clock events are kept and still sync.",
		RunE:  runReset,
	}

	cmd.Flags().Bool("yes", false, "confirm the reset")

	return cmd
}

func runReset(cmd *cobra.Command, _ []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return pcerr.New(pcerr.CodeCLIInputInvalid, "refusing to clear reference data without --yes")
	}

	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		if err := t.Service.Reset(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Reference embeddings cleared.")
		return nil
	})
}
