// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/punchcard-dev/punchcard/internal/reconcile"
	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_Validation(t *testing.T) {
	r := newReconciler(t, &fakeAuthority{}, newQueue(t), newEmbeddings(t))

	_, err := reconcile.NewScheduler(nil, reconcile.SchedulerConfig{EmbeddingsInterval: time.Minute, EventsInterval: time.Minute})
	assert.True(t, pcerr.IsInvalidInput(err))

	_, err = reconcile.NewScheduler(r, reconcile.SchedulerConfig{EmbeddingsInterval: 0, EventsInterval: time.Minute})
	assert.True(t, pcerr.IsInvalidInput(err))

	_, err = reconcile.NewScheduler(r, reconcile.SchedulerConfig{EmbeddingsInterval: time.Minute, EventsInterval: -1})
	assert.True(t, pcerr.IsInvalidInput(err))
}

func runScheduler(t *testing.T, s *reconcile.Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
	return cancel
}

func TestScheduler_PullsOnStartAndPushesOnAppend(t *testing.T) {
	q := newQueue(t)
	emb := newEmbeddings(t)
	auth := &fakeAuthority{records: []store.EmbeddingRecord{
		{Identity: "E1", DisplayName: "Ana", Vector: []float32{1, 0}},
	}}
	r := newReconciler(t, auth, q, emb)

	s, err := reconcile.NewScheduler(r, reconcile.SchedulerConfig{
		EmbeddingsInterval: time.Hour,
		EventsInterval:     time.Hour,
	})
	require.NoError(t, err)
	runScheduler(t, s)

	require.Eventually(t, func() bool {
		return len(emb.LoadAll(context.Background())) == 1
	}, 5*time.Second, 10*time.Millisecond)

	appendEvent(t, q, "evt", 0)
	require.Eventually(t, func() bool {
		ev, err := q.Get(context.Background(), "evt")
		return err == nil && ev.State == store.SyncStateSynced
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_PushesQueuedEventsOnStart(t *testing.T) {
	q := newQueue(t)
	appendEvent(t, q, "queued-offline", 0)
	auth := &fakeAuthority{}
	r := newReconciler(t, auth, q, newEmbeddings(t))

	s, err := reconcile.NewScheduler(r, reconcile.SchedulerConfig{EmbeddingsInterval: time.Hour, EventsInterval: time.Hour})
	require.NoError(t, err)
	runScheduler(t, s)

	require.Eventually(t, func() bool {
		n, err := q.CountPending(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_SkipsPassesDuringCooldown(t *testing.T) {
	q := newQueue(t)
	auth := &fakeAuthority{}
	h, err := reconcile.NewHealthTracker(time.Hour)
	require.NoError(t, err)
	h.RecordFailure()

	r := newReconciler(t, auth, q, newEmbeddings(t), reconcile.WithHealthTracker(h))
	s, err := reconcile.NewScheduler(r, reconcile.SchedulerConfig{
		EmbeddingsInterval: 20 * time.Millisecond,
		EventsInterval:     20 * time.Millisecond,
	})
	require.NoError(t, err)
	runScheduler(t, s)

	appendEvent(t, q, "held", 0)
	assert.Never(t, func() bool {
		return len(auth.submissions()) > 0 || auth.fetchCount() > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, store.SyncStatePending, stateOf(t, q, "held"))
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	r := newReconciler(t, &fakeAuthority{}, newQueue(t), newEmbeddings(t))
	s, err := reconcile.NewScheduler(r, reconcile.SchedulerConfig{EmbeddingsInterval: time.Hour, EventsInterval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
