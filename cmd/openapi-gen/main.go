// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/punchcard-dev/punchcard/internal/matcher"
	"github.com/punchcard-dev/punchcard/internal/reconcile"
	"github.com/punchcard-dev/punchcard/internal/server"
	"github.com/punchcard-dev/punchcard/internal/store"
	"github.com/punchcard-dev/punchcard/internal/terminal"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every local API route against no-op services and
// returns the OpenAPI document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubTerminal{}, server.WithSync(stubSync{}))
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, pcerr.Errorf(pcerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubTerminal struct{}

func (stubTerminal) Identify(context.Context, []float32) (matcher.Result, error) {
	return matcher.Result{}, nil
}

func (stubTerminal) Clock(context.Context, terminal.ClockRequest) (*store.ClockEvent, error) {
	return nil, nil
}

func (stubTerminal) ClockByFace(context.Context, []float32, store.EventKind, time.Time) (*store.ClockEvent, matcher.Result, error) {
	return nil, matcher.Result{}, nil
}

func (stubTerminal) Status(context.Context) (terminal.Status, error) { return terminal.Status{}, nil }

func (stubTerminal) Pending(context.Context) ([]*store.ClockEvent, error) { return nil, nil }

func (stubTerminal) ObservePending(context.Context) (<-chan []store.ClockEvent, error) {
	return nil, nil
}

type stubSync struct{}

func (stubSync) SyncEmbeddings(context.Context) (int, error) { return 0, nil }

func (stubSync) PushEvents(context.Context) (reconcile.PushResult, error) {
	return reconcile.PushResult{}, nil
}
