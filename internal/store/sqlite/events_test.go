// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/punchcard-dev/punchcard/internal/store"
	"github.com/punchcard-dev/punchcard/internal/store/sqlite"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newQueue(t *testing.T) (*sqlite.EventQueue, string) {
	t.Helper()
	path := testDBPath(t, "events")
	q, err := sqlite.NewEventQueue(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, path
}

func clockEvent(id string, at time.Time) *store.ClockEvent {
	return &store.ClockEvent{
		ID:        id,
		Identity:  "E100",
		Kind:      store.EventKindClockIn,
		Method:    store.AuthMethodFace,
		EventTime: at,
		CreatedAt: at.Add(time.Second),
	}
}

func pendingIDs(t *testing.T, q *sqlite.EventQueue) []string {
	t.Helper()
	pending, err := q.ListPending(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(pending))
	for i, ev := range pending {
		ids[i] = ev.ID
	}
	return ids
}

func TestEventQueue_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	ev := clockEvent("evt-1", baseTime.Add(123*time.Nanosecond))
	ev.Kind = store.EventKindClockOut
	ev.Method = store.AuthMethodPIN
	require.NoError(t, q.Append(ctx, ev))
	assert.Equal(t, store.SyncStatePending, ev.State)

	got, err := q.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "E100", got.Identity)
	assert.Equal(t, store.EventKindClockOut, got.Kind)
	assert.Equal(t, store.AuthMethodPIN, got.Method)
	assert.Equal(t, store.SyncStatePending, got.State)
	assert.True(t, ev.EventTime.Equal(got.EventTime), "event time keeps nanoseconds")
	assert.True(t, ev.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.SyncedAt.IsZero())
}

func TestEventQueue_AppendDuplicateIDConflicts(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	require.NoError(t, q.Append(ctx, clockEvent("evt-dup", baseTime)))
	err := q.Append(ctx, clockEvent("evt-dup", baseTime.Add(time.Minute)))
	require.Error(t, err)
	assert.True(t, pcerr.IsConflict(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	assert.Equal(t, []string{"evt-dup"}, pendingIDs(t, q))
}

func TestEventQueue_AppendValidates(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	tests := []struct {
		name   string
		mutate func(*store.ClockEvent)
	}{
		{"missing id", func(e *store.ClockEvent) { e.ID = "" }},
		{"missing identity", func(e *store.ClockEvent) { e.Identity = "" }},
		{"bad kind", func(e *store.ClockEvent) { e.Kind = "LUNCH" }},
		{"bad method", func(e *store.ClockEvent) { e.Method = "IRIS" }},
		{"zero event time", func(e *store.ClockEvent) { e.EventTime = time.Time{} }},
		{"already synced", func(e *store.ClockEvent) { e.State = store.SyncStateSynced }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := clockEvent("evt-invalid", baseTime)
			tt.mutate(ev)
			err := q.Append(ctx, ev)
			require.Error(t, err)
			assert.True(t, pcerr.HasCode(err, pcerr.CodeStoreEventAppendInvalid))
		})
	}

	assert.Error(t, q.Append(ctx, nil))
	assert.Empty(t, pendingIDs(t, q))
}

func TestEventQueue_ListPendingOrdersByEventTime(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	t1, t2, t3 := baseTime, baseTime.Add(time.Minute), baseTime.Add(2*time.Minute)
	require.NoError(t, q.Append(ctx, clockEvent("id3", t3)))
	require.NoError(t, q.Append(ctx, clockEvent("id1", t1)))
	require.NoError(t, q.Append(ctx, clockEvent("id2", t2)))

	assert.Equal(t, []string{"id1", "id2", "id3"}, pendingIDs(t, q))
}

func TestEventQueue_EqualTimesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, q.Append(ctx, clockEvent(id, baseTime)))
	}
	assert.Equal(t, []string{"b", "a", "c"}, pendingIDs(t, q))
}

func TestEventQueue_MarkSyncedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	fixed := baseTime.Add(time.Hour)
	sqlite.SetQueueClock(q, func() time.Time { return fixed })

	require.NoError(t, q.Append(ctx, clockEvent("evt-1", baseTime)))
	require.NoError(t, q.Append(ctx, clockEvent("evt-2", baseTime.Add(time.Second))))

	require.NoError(t, q.MarkSynced(ctx, "evt-1"))
	once, err := q.Get(ctx, "evt-1")
	require.NoError(t, err)

	sqlite.SetQueueClock(q, func() time.Time { return fixed.Add(time.Hour) })
	require.NoError(t, q.MarkSynced(ctx, "evt-1"))
	twice, err := q.Get(ctx, "evt-1")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, store.SyncStateSynced, twice.State)
	assert.True(t, fixed.Equal(twice.SyncedAt))
	assert.Equal(t, []string{"evt-2"}, pendingIDs(t, q))
}

func TestEventQueue_MarkSyncedUnknownIsNotFound(t *testing.T) {
	q, _ := newQueue(t)
	err := q.MarkSynced(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, pcerr.HasCode(err, pcerr.CodeStoreEventGetNotFound))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEventQueue_CountPending(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	n, err := q.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := range 4 {
		require.NoError(t, q.Append(ctx, clockEvent(fmt.Sprintf("evt-%d", i), baseTime.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, q.MarkSynced(ctx, "evt-0"))

	n, err = q.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEventQueue_PurgeOnlyRemovesOldSyncedEvents(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	sqlite.SetQueueClock(q, func() time.Time { return baseTime })
	require.NoError(t, q.Append(ctx, clockEvent("old-synced", baseTime)))
	require.NoError(t, q.MarkSynced(ctx, "old-synced"))

	sqlite.SetQueueClock(q, func() time.Time { return baseTime.Add(48 * time.Hour) })
	require.NoError(t, q.Append(ctx, clockEvent("new-synced", baseTime)))
	require.NoError(t, q.MarkSynced(ctx, "new-synced"))
	require.NoError(t, q.Append(ctx, clockEvent("still-pending", baseTime.Add(-time.Hour))))

	n, err := q.Purge(ctx, baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = q.Get(ctx, "old-synced")
	assert.True(t, pcerr.IsNotFound(err))
	_, err = q.Get(ctx, "new-synced")
	assert.NoError(t, err)
	assert.Equal(t, []string{"still-pending"}, pendingIDs(t, q))
}

func TestEventQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "events")

	q, err := sqlite.NewEventQueue(path)
	require.NoError(t, err)
	require.NoError(t, q.Append(ctx, clockEvent("evt-a", baseTime)))
	require.NoError(t, q.Append(ctx, clockEvent("evt-b", baseTime.Add(time.Second))))
	require.NoError(t, q.MarkSynced(ctx, "evt-a"))
	require.NoError(t, q.Close())

	reopened, err := sqlite.NewEventQueue(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []string{"evt-b"}, pendingIDs(t, reopened))
	a, err := reopened.Get(ctx, "evt-a")
	require.NoError(t, err)
	assert.Equal(t, store.SyncStateSynced, a.State)
}

func TestEventQueue_ConcurrentAppendAndMark(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	const n = 40
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("evt-%02d", i)
			assert.NoError(t, q.Append(ctx, clockEvent(id, baseTime.Add(time.Duration(i)*time.Millisecond))))
			if i%2 == 0 {
				assert.NoError(t, q.MarkSynced(ctx, id))
			}
		}()
	}
	wg.Wait()

	ids := pendingIDs(t, q)
	require.Len(t, ids, n/2)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("evt-%02d", 2*i+1), id)
	}
}
