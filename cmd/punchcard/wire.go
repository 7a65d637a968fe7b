// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/punchcard-dev/punchcard/internal/config"
	"github.com/punchcard-dev/punchcard/internal/metrics"
	"github.com/punchcard-dev/punchcard/internal/reconcile"
	"github.com/punchcard-dev/punchcard/internal/remote"
	"github.com/punchcard-dev/punchcard/internal/secrets"
	"github.com/punchcard-dev/punchcard/internal/store"
	_ "github.com/punchcard-dev/punchcard/internal/store/sqlite" // register sqlite backend
	"github.com/punchcard-dev/punchcard/internal/terminal"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
)

// authorityFactory builds the remote client. Tests replace it to point at
// an httptest server or a fake.
var authorityFactory = func(cfg config.RemoteConfig, apiKey string) (remote.Authority, error) {
	return remote.NewClient(cfg.BaseURL, apiKey, cfg.Timeout)
}

// Terminal holds all wired subsystems of one punchcard process.
type Terminal struct {
	Config     *config.Config
	Embeddings store.EmbeddingStore
	Queue      store.EventQueue
	Service    *terminal.Service
	Metrics    *metrics.Manager

	// Authority and Reconciler are nil when no backend is configured.
	Authority  remote.Authority
	Reconciler *reconcile.Reconciler
}

// WireTerminal opens the stores under the configured data directory and
// wires the terminal service, and the reconciler when a backend is set.
func WireTerminal(cfg *config.Config, secretStore secrets.Store, opts ...metrics.Option) (*Terminal, error) {
	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, pcerr.Errorf(pcerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	storeCfg := &store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		SnapshotKeyAlias: cfg.Keyring.SnapshotKeyAlias,
	}
	sealer := secrets.NewKeyringSealer(secretStore, cfg.Keyring.Service)

	emb, err := store.NewEmbeddingStore(storeCfg, dataDir, sealer)
	if err != nil {
		return nil, pcerr.Errorf(pcerr.CodeCLISetupFailure, "opening embedding store: %w", err)
	}
	queue, err := store.NewEventQueue(storeCfg, dataDir)
	if err != nil {
		_ = emb.Close()
		return nil, pcerr.Errorf(pcerr.CodeCLISetupFailure, "opening event queue: %w", err)
	}

	t := &Terminal{
		Config:     cfg,
		Embeddings: emb,
		Queue:      queue,
		Metrics:    metrics.NewManager(opts...),
	}
	t.Metrics.SetSnapshotRecords(len(emb.LoadAll(context.Background())))

	termOpts := []terminal.Option{terminal.WithMetrics(t.Metrics)}

	if cfg.Remote.BaseURL != "" {
		apiKey := cfg.Remote.APIKey
		if secrets.IsKeyringURI(apiKey) {
			slog.Warn("device API key not found in keyring, run 'punchcard register'", "ref", apiKey)
			apiKey = ""
		}

		authority, err := authorityFactory(cfg.Remote, apiKey)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		health, err := reconcile.NewHealthTracker(cfg.Sync.UnavailableCooldown)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		rec, err := reconcile.New(emb, queue, authority,
			reconcile.WithHealthTracker(health),
			reconcile.WithMetrics(t.Metrics),
		)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.Authority = authority
		t.Reconciler = rec
		termOpts = append(termOpts, terminal.WithHealth(health))
	}

	svc, err := terminal.New(terminal.Config{
		DeviceID:   cfg.Device.ID,
		Threshold:  cfg.Matching.Threshold,
		Dimensions: cfg.Matching.Dimensions,
	}, emb, queue, termOpts...)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.Service = svc

	return t, nil
}

// RequireReconciler returns the reconciler or an error naming the missing
// backend configuration.
func (t *Terminal) RequireReconciler() (*reconcile.Reconciler, error) {
	if t.Reconciler == nil {
		return nil, pcerr.New(pcerr.CodeCLISetupFailure,
			"no backend configured: set remote.base_url or run 'punchcard register'")
	}
	return t.Reconciler, nil
}

// Close releases both stores.
func (t *Terminal) Close() error {
	return errors.Join(t.Embeddings.Close(), t.Queue.Close())
}

// withTerminal loads config, wires a Terminal for the duration of fn, and
// closes it afterwards.
func withTerminal(cmd *cobra.Command, fn func(ctx context.Context, t *Terminal) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	term, err := WireTerminal(cfg, secretStoreFactory())
	if err != nil {
		return err
	}
	defer func() { _ = term.Close() }()

	return fn(cmd.Context(), term)
}
