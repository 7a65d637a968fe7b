// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
)

func newIdentifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Match a probe embedding against the local snapshot",
		Long:  "Read a probe vector (a JSON array of numbers) and print the matching identity, if any reaches the threshold.",
		RunE:  runIdentify,
	}

	cmd.Flags().String("vector", "", "file holding the probe vector as a JSON array, or - for stdin")
	_ = cmd.MarkFlagRequired("vector")

	return cmd
}

func runIdentify(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("vector")
	probe, err := readVector(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	return withTerminal(cmd, func(ctx context.Context, t *Terminal) error {
		res, err := t.Service.Identify(ctx, probe)
		if err != nil {
			if pcerr.IsNotFound(err) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No match")
			}
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %q confidence %.4f\n", res.Identity, res.DisplayName, res.Confidence)
		return nil
	})
}

// readVector decodes a JSON number array from path, or from stdin when
// path is "-".
func readVector(stdin io.Reader, path string) ([]float32, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, pcerr.Errorf(pcerr.CodeCLIInputInvalid, "opening vector file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var vec []float32
	if err := json.NewDecoder(r).Decode(&vec); err != nil {
		return nil, pcerr.Errorf(pcerr.CodeCLIInputInvalid, "decoding vector: %w", err)
	}
	if len(vec) == 0 {
		return nil, pcerr.New(pcerr.CodeCLIInputInvalid, "vector is empty")
	}
	return vec, nil
}
