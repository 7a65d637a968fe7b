// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/punchcard-dev/punchcard/internal/metrics"
	"github.com/punchcard-dev/punchcard/internal/reconcile"
	"github.com/punchcard-dev/punchcard/internal/server"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the terminal",
		Long:  "Open the local stores, serve the local API, and run the sync scheduler until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	term, err := WireTerminal(cfg, secretStoreFactory(), metrics.WithGoCollectors())
	if err != nil {
		return err
	}
	defer func() { _ = term.Close() }()

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     version,
	})
	if err != nil {
		return err
	}

	svcOpts := []server.ServicesOption{server.WithMetricsHandler(term.Metrics.Handler())}
	if term.Reconciler != nil {
		svcOpts = append(svcOpts, server.WithSync(term.Reconciler))
	}
	services, err := server.NewServices(term.Service, svcOpts...)
	if err != nil {
		return err
	}
	srv.RegisterServices(services)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting punchcard terminal %s on %s\n", cfg.Device.ID, cfg.Server.Listen)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if term.Reconciler != nil {
		sched, err := reconcile.NewScheduler(term.Reconciler, reconcile.SchedulerConfig{
			EmbeddingsInterval: cfg.Sync.EmbeddingsInterval,
			EventsInterval:     cfg.Sync.EventsInterval,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil {
				slog.Error("sync scheduler stopped", "error", err)
			}
		}()
	} else {
		slog.Warn("no backend configured, running offline only")
	}

	// A server failure also stops the scheduler.
	err = srv.Start(ctx)
	cancel()
	wg.Wait()
	return err
}
