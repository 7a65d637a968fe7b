// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/punchcard-dev/punchcard/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RecordsAndServes(t *testing.T) {
	m := metrics.NewManager()

	m.ObserveMatch(metrics.MatchAccepted, 0.91)
	m.ObserveMatch(metrics.MatchRejected, 0.3)
	m.EventAppended("CLOCK_IN", "FACE")
	m.EventSynced(false)
	m.EventSynced(true)
	m.EventFailed()
	m.EventMarkFailed()
	m.SyncPass(metrics.FlowPush, metrics.ResultOK)
	m.SetPending(4)
	m.SetSnapshotRecords(120)
	m.SetRemoteAvailable(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `punchcard_matcher_matches_total{outcome="accepted"} 1`)
	assert.Contains(t, text, `punchcard_sync_events_synced_total{duplicate="true"} 1`)
	assert.Contains(t, text, `punchcard_queue_pending_events 4`)
	assert.Contains(t, text, `punchcard_sync_events_failed_total 1`)
	assert.Contains(t, text, `punchcard_queue_mark_synced_failures_total 1`)
	assert.Contains(t, text, `punchcard_store_snapshot_records 120`)
	assert.Contains(t, text, `punchcard_remote_available 1`)
	assert.Contains(t, text, `punchcard_sync_passes_total{flow="push",result="ok"} 1`)
}

func TestManager_HistogramOnlyCountsAccepted(t *testing.T) {
	m := metrics.NewManager()
	m.ObserveMatch(metrics.MatchRejected, 0.5)
	m.ObserveMatch(metrics.MatchRejected, 0)
	m.ObserveMatch(metrics.MatchAccepted, 0.8)

	count, err := testutil.GatherAndCount(m.Registry(), "punchcard_matcher_accepted_score")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *metrics.Manager
	assert.NotPanics(t, func() {
		m.ObserveMatch(metrics.MatchAccepted, 1)
		m.EventAppended("CLOCK_IN", "PIN")
		m.EventSynced(true)
		m.EventFailed()
		m.EventMarkFailed()
		m.SyncPass(metrics.FlowPull, metrics.ResultError)
		m.SetPending(1)
		m.SetSnapshotRecords(1)
		m.SetRemoteAvailable(false)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManager_IndependentRegistries(t *testing.T) {
	a := metrics.NewManager()
	b := metrics.NewManager(metrics.WithGoCollectors())
	a.SetPending(7)

	assert.NotSame(t, a.Registry(), b.Registry())
	n, err := testutil.GatherAndCount(b.Registry(), "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
