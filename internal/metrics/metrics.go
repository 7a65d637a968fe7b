// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package metrics exposes terminal activity as Prometheus metrics. A nil
// *Manager is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "punchcard"

// Match outcomes.
const (
	MatchAccepted = "accepted"
	MatchRejected = "rejected"
)

// Sync flows and results.
const (
	FlowPull = "pull"
	FlowPush = "push"

	ResultOK       = "ok"
	ResultError    = "error"
	ResultDeferred = "deferred"
	ResultSkipped  = "skipped"
)

// Manager owns a private registry so tests and multiple terminals in one
// process never collide on the global one.
type Manager struct {
	registry *prometheus.Registry

	matches         *prometheus.CounterVec
	matchScore      prometheus.Histogram
	eventsAppended  *prometheus.CounterVec
	eventsSynced    *prometheus.CounterVec
	eventsFailed    prometheus.Counter
	markFailed      prometheus.Counter
	syncPasses      *prometheus.CounterVec
	pendingEvents   prometheus.Gauge
	snapshotRecords prometheus.Gauge
	remoteAvailable prometheus.Gauge
}

type Option func(*Manager)

// WithGoCollectors adds the Go runtime and process collectors.
func WithGoCollectors() Option {
	return func(m *Manager) {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{registry: prometheus.NewRegistry()}
	auto := promauto.With(m.registry)

	m.matches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "matches_total",
		Help:      "Identification attempts by outcome.",
	}, []string{"outcome"})
	m.matchScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "accepted_score",
		Help:      "Cosine similarity of accepted matches.",
		Buckets:   []float64{0.5, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
	})
	m.eventsAppended = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "events_appended_total",
		Help:      "Clock events written to the offline queue.",
	}, []string{"kind", "method"})
	m.eventsSynced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "events_synced_total",
		Help:      "Events acknowledged by the backend.",
	}, []string{"duplicate"})
	m.eventsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "events_failed_total",
		Help:      "Event submissions the backend rejected.",
	})
	m.markFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "mark_synced_failures_total",
		Help:      "Acknowledged events the local queue failed to mark synced.",
	})
	m.syncPasses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Sync passes by flow and result.",
	}, []string{"flow", "result"})
	m.pendingEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "pending_events",
		Help:      "Events waiting to be pushed.",
	})
	m.snapshotRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "snapshot_records",
		Help:      "Records in the last embedding snapshot written.",
	})
	m.remoteAvailable = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "available",
		Help:      "1 when the backend is considered reachable.",
	})

	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) ObserveMatch(outcome string, score float64) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(outcome).Inc()
	if outcome == MatchAccepted {
		m.matchScore.Observe(score)
	}
}

func (m *Manager) EventAppended(kind, method string) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(kind, method).Inc()
}

func (m *Manager) EventSynced(duplicate bool) {
	if m == nil {
		return
	}
	label := "false"
	if duplicate {
		label = "true"
	}
	m.eventsSynced.WithLabelValues(label).Inc()
}

func (m *Manager) EventFailed() {
	if m == nil {
		return
	}
	m.eventsFailed.Inc()
}

// EventMarkFailed counts a local storage fault after a backend ack, kept
// apart from EventFailed so rejections and disk problems do not blur.
func (m *Manager) EventMarkFailed() {
	if m == nil {
		return
	}
	m.markFailed.Inc()
}

func (m *Manager) SyncPass(flow, result string) {
	if m == nil {
		return
	}
	m.syncPasses.WithLabelValues(flow, result).Inc()
}

func (m *Manager) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingEvents.Set(float64(n))
}

func (m *Manager) SetSnapshotRecords(n int) {
	if m == nil {
		return
	}
	m.snapshotRecords.Set(float64(n))
}

func (m *Manager) SetRemoteAvailable(ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.remoteAvailable.Set(v)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
