// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/punchcard-dev/punchcard/internal/metrics"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

// SchedulerConfig sets the pass cadence.
type SchedulerConfig struct {
	EmbeddingsInterval time.Duration
	EventsInterval     time.Duration
}

// Scheduler drives the reconciler: a pull on every embeddings tick, a push
// on every events tick, and an extra push whenever the pending queue grows.
// Passes are skipped while the backend is in its unavailable cooldown.
type Scheduler struct {
	rec *Reconciler
	cfg SchedulerConfig
}

func NewScheduler(rec *Reconciler, cfg SchedulerConfig) (*Scheduler, error) {
	if rec == nil {
		return nil, pcerr.New(pcerr.CodeConfigValidateInvalidValue, "scheduler requires a reconciler")
	}
	if cfg.EmbeddingsInterval <= 0 || cfg.EventsInterval <= 0 {
		return nil, pcerr.Errorf(pcerr.CodeConfigValidateInvalidValue,
			"sync intervals must be positive, got embeddings=%s events=%s",
			cfg.EmbeddingsInterval, cfg.EventsInterval)
	}
	return &Scheduler{rec: rec, cfg: cfg}, nil
}

// Run blocks until ctx is done. A pass in flight when ctx is cancelled stops
// at the next event boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	pending, err := s.rec.queue.ObservePending(ctx)
	if err != nil {
		slog.Warn("pending queue observation unavailable, relying on ticks", "error", err)
		pending = nil
		s.push(ctx)
	}

	s.pull(ctx)

	pullTicker := time.NewTicker(s.cfg.EmbeddingsInterval)
	defer pullTicker.Stop()
	pushTicker := time.NewTicker(s.cfg.EventsInterval)
	defer pushTicker.Stop()

	slog.Info("sync scheduler started",
		"embeddings_interval", s.cfg.EmbeddingsInterval,
		"events_interval", s.cfg.EventsInterval)

	lastCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return nil
		case <-pullTicker.C:
			s.pull(ctx)
		case <-pushTicker.C:
			s.push(ctx)
		case list, ok := <-pending:
			if !ok {
				pending = nil
				continue
			}
			s.rec.metrics.SetPending(len(list))
			grew := len(list) > lastCount
			lastCount = len(list)
			if grew {
				s.push(ctx)
			}
		}
	}
}

func (s *Scheduler) pull(ctx context.Context) {
	if !s.rec.health.IsHealthy() {
		s.rec.metrics.SyncPass(metrics.FlowPull, metrics.ResultSkipped)
		slog.Debug("pull skipped, backend in cooldown")
		return
	}
	if _, err := s.rec.SyncEmbeddings(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("scheduled embedding pull failed", "error", err)
	}
}

func (s *Scheduler) push(ctx context.Context) {
	if !s.rec.health.IsHealthy() {
		s.rec.metrics.SyncPass(metrics.FlowPush, metrics.ResultSkipped)
		slog.Debug("push skipped, backend in cooldown")
		return
	}
	result, err := s.rec.PushEvents(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Warn("scheduled event push failed", "error", err)
		return
	}
	if len(result.Failed) > 0 {
		slog.Warn("events left pending after push", "failed_event_ids", result.Failed)
	}
	if len(result.MarkFailed) > 0 {
		slog.Error("acknowledged events not marked synced", "event_ids", result.MarkFailed)
	}
}
