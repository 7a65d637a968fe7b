// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package reconcile moves data between the terminal and the backend: the
// embedding snapshot flows down, queued clock events flow up. The two flows
// are independent and may run concurrently with each other.
package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/punchcard-dev/punchcard/internal/metrics"
	"github.com/punchcard-dev/punchcard/internal/remote"
	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

// PushResult summarises one push pass. Failed lists events the backend
// refused; they stay PENDING. MarkFailed lists events the backend accepted
// but the local queue could not mark SYNCED; they are resubmitted next pass
// and acked as duplicates. Deferred counts events not attempted because the
// backend became unreachable mid-pass or the pass was cancelled.
type PushResult struct {
	Synced     int      `json:"synced"`
	Failed     []string `json:"failed_event_ids"`
	MarkFailed []string `json:"mark_failed_event_ids"`
	Deferred   int      `json:"deferred"`
}

type Reconciler struct {
	embeddings store.EmbeddingStore
	queue      store.EventQueue
	authority  remote.Authority
	health     *HealthTracker
	metrics    *metrics.Manager

	pullMu sync.Mutex
	pushMu sync.Mutex
}

type Option func(*Reconciler)

func WithHealthTracker(h *HealthTracker) Option {
	return func(r *Reconciler) { r.health = h }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func New(embeddings store.EmbeddingStore, queue store.EventQueue, authority remote.Authority, opts ...Option) (*Reconciler, error) {
	if embeddings == nil || queue == nil || authority == nil {
		return nil, pcerr.New(pcerr.CodeStoreInvalidInput,
			"reconciler requires an embedding store, an event queue and a remote authority")
	}

	r := &Reconciler{embeddings: embeddings, queue: queue, authority: authority}
	for _, opt := range opts {
		opt(r)
	}
	if r.health == nil {
		h, err := NewHealthTracker(DefaultUnavailableCooldown)
		if err != nil {
			return nil, err
		}
		r.health = h
	}
	return r, nil
}

// Health exposes the backend reachability tracker shared by both flows.
func (r *Reconciler) Health() *HealthTracker {
	return r.health
}

// SyncEmbeddings replaces the local snapshot with the backend's full set and
// returns the record count. On any failure the previous snapshot stays in
// place.
func (r *Reconciler) SyncEmbeddings(ctx context.Context) (int, error) {
	r.pullMu.Lock()
	defer r.pullMu.Unlock()

	records, err := r.authority.FetchEmbeddings(ctx)
	if err != nil {
		r.noteRemoteError(err)
		r.metrics.SyncPass(metrics.FlowPull, metrics.ResultError)
		slog.Warn("embedding pull failed, keeping current snapshot", "error", err)
		return 0, pcerr.Wrap(err, pcerr.CodeSyncPullFailure, "fetching embeddings")
	}
	r.health.RecordSuccess()
	r.metrics.SetRemoteAvailable(true)

	if err := r.embeddings.ReplaceAll(ctx, records); err != nil {
		r.metrics.SyncPass(metrics.FlowPull, metrics.ResultError)
		slog.Error("storing pulled embeddings failed, keeping current snapshot", "error", err)
		return 0, pcerr.Wrap(err, pcerr.CodeSyncPullFailure, "replacing embedding snapshot")
	}

	r.metrics.SetSnapshotRecords(len(records))
	r.metrics.SyncPass(metrics.FlowPull, metrics.ResultOK)
	slog.Info("embeddings synced", "records", len(records))
	return len(records), nil
}

// PushEvents submits pending events oldest first and marks each one synced
// once the backend acknowledges it. A refused event is recorded in
// Failed and the pass moves on. If the backend becomes unreachable the pass
// stops and the remaining events are counted as Deferred; that is not an
// error. The returned error is non-nil only when the queue could not be
// read or ctx was cancelled, and the partial result is still valid.
func (r *Reconciler) PushEvents(ctx context.Context) (PushResult, error) {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	var result PushResult

	pending, err := r.queue.ListPending(ctx)
	if err != nil {
		r.metrics.SyncPass(metrics.FlowPush, metrics.ResultError)
		return result, pcerr.Wrap(err, pcerr.CodeSyncPushFailure, "listing pending events")
	}

	for i, ev := range pending {
		if err := ctx.Err(); err != nil {
			result.Deferred = len(pending) - i
			r.finishPush(ctx, result, metrics.ResultDeferred)
			return result, pcerr.Wrap(err, pcerr.CodeSyncPushFailure, "push pass cancelled")
		}

		ack, err := r.authority.SubmitEvent(ctx, remote.SubmissionFor(ev))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Deferred = len(pending) - i
				r.finishPush(ctx, result, metrics.ResultDeferred)
				return result, pcerr.Wrap(ctxErr, pcerr.CodeSyncPushFailure, "push pass cancelled")
			}
			if pcerr.IsUnavailable(err) {
				r.noteRemoteError(err)
				result.Deferred = len(pending) - i
				slog.Warn("backend unavailable, deferring pending events",
					"event_id", ev.ID, "deferred", result.Deferred, "error", err)
				r.finishPush(ctx, result, metrics.ResultDeferred)
				return result, nil
			}

			result.Failed = append(result.Failed, ev.ID)
			r.metrics.EventFailed()
			slog.Warn("event rejected, left pending",
				"event_id", ev.ID, "identity", ev.Identity, "code", pcerr.CodeOf(err), "error", err)
			continue
		}
		r.health.RecordSuccess()

		// The backend holds the event now. Mark it even if the pass is being
		// cancelled so the next pass does not resubmit it needlessly.
		if err := r.queue.MarkSynced(context.WithoutCancel(ctx), ev.ID); err != nil {
			result.MarkFailed = append(result.MarkFailed, ev.ID)
			r.metrics.EventMarkFailed()
			slog.Error("acknowledged event could not be marked synced",
				"event_id", ev.ID, "error", err)
			continue
		}
		result.Synced++
		r.metrics.EventSynced(ack.Duplicate)
		slog.Info("event synced", "event_id", ev.ID, "duplicate", ack.Duplicate)
	}

	outcome := metrics.ResultOK
	if len(result.Failed) > 0 || len(result.MarkFailed) > 0 {
		outcome = metrics.ResultError
	}
	r.finishPush(ctx, result, outcome)
	return result, nil
}

func (r *Reconciler) finishPush(ctx context.Context, result PushResult, outcome string) {
	r.metrics.SyncPass(metrics.FlowPush, outcome)
	if n, err := r.queue.CountPending(context.WithoutCancel(ctx)); err == nil {
		r.metrics.SetPending(n)
	}
	if result.Synced > 0 || len(result.Failed) > 0 || len(result.MarkFailed) > 0 || result.Deferred > 0 {
		slog.Debug("push pass finished",
			"synced", result.Synced, "failed", len(result.Failed),
			"mark_failed", len(result.MarkFailed), "deferred", result.Deferred)
	}
}

func (r *Reconciler) noteRemoteError(err error) {
	if pcerr.IsUnavailable(err) || pcerr.IsTimeout(err) {
		r.health.RecordFailure()
		r.metrics.SetRemoteAvailable(false)
	}
}
