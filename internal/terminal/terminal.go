// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package terminal is the capture-side flow of a clock terminal: identify a
// face embedding, then queue the resulting clock event for sync.
package terminal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/punchcard-dev/punchcard/internal/matcher"
	"github.com/punchcard-dev/punchcard/internal/metrics"
	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/punchcard-dev/punchcard/pkg/health"
)

// DefaultThreshold is the minimum cosine similarity for an accepted match.
const DefaultThreshold = 0.65

type Config struct {
	DeviceID  string
	Threshold float64
	// Dimensions is the embedding length the generator is expected to
	// produce. Zero disables the probe length warning.
	Dimensions int
}

// HealthReporter reports backend reachability for Status.
type HealthReporter interface {
	Metrics() health.Metrics
}

// ClockRequest describes an event to queue. A zero EventTime means now.
type ClockRequest struct {
	Identity  string
	Kind      store.EventKind
	Method    store.AuthMethod
	EventTime time.Time
}

// Status is a point-in-time view of the terminal.
type Status struct {
	DeviceID   string          `json:"device_id"`
	Records    int             `json:"snapshot_records"`
	Dimensions []int           `json:"dimensions,omitempty"`
	Pending    int             `json:"pending_events"`
	Threshold  float64         `json:"threshold"`
	Remote     *health.Metrics `json:"remote,omitempty"`
}

type Service struct {
	cfg        Config
	embeddings store.EmbeddingStore
	queue      store.EventQueue
	matcher    *matcher.Matcher
	health     HealthReporter
	metrics    *metrics.Manager
	now        func() time.Time
	newID      func() string
}

type Option func(*Service)

func WithHealth(h HealthReporter) Option {
	return func(s *Service) { s.health = h }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides event id generation (for testing).
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func New(cfg Config, embeddings store.EmbeddingStore, queue store.EventQueue, opts ...Option) (*Service, error) {
	if embeddings == nil || queue == nil {
		return nil, pcerr.New(pcerr.CodeStoreInvalidInput, "terminal requires an embedding store and an event queue")
	}
	if cfg.Threshold < -1 || cfg.Threshold > 1 {
		return nil, pcerr.Errorf(pcerr.CodeConfigValidateInvalidValue,
			"match threshold must be within [-1, 1], got %v", cfg.Threshold)
	}
	if cfg.Dimensions < 0 {
		return nil, pcerr.Errorf(pcerr.CodeConfigValidateInvalidValue,
			"embedding dimensions must not be negative, got %d", cfg.Dimensions)
	}

	s := &Service{
		cfg:        cfg,
		embeddings: embeddings,
		queue:      queue,
		matcher:    matcher.New(embeddings),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Identify matches probe against the local snapshot at the configured
// threshold. An empty snapshot and a best candidate below threshold both
// return a CodeMatcherNoMatch error.
func (s *Service) Identify(ctx context.Context, probe []float32) (matcher.Result, error) {
	if err := matcher.ValidateProbe(probe); err != nil {
		return matcher.Result{}, err
	}
	if s.cfg.Dimensions > 0 && len(probe) != s.cfg.Dimensions {
		slog.Warn("probe length differs from configured dimensions",
			"probe_len", len(probe), "dimensions", s.cfg.Dimensions)
	}

	result, ok := s.matcher.Match(ctx, probe, s.cfg.Threshold)
	if !ok {
		s.metrics.ObserveMatch(metrics.MatchRejected, 0)
		return matcher.Result{}, pcerr.New(pcerr.CodeMatcherNoMatch, "no enrolled identity matches the probe")
	}
	s.metrics.ObserveMatch(metrics.MatchAccepted, result.Confidence)
	return result, nil
}

// Clock queues a PENDING event with a fresh id.
func (s *Service) Clock(ctx context.Context, req ClockRequest) (*store.ClockEvent, error) {
	now := s.now().UTC()
	eventTime := req.EventTime
	if eventTime.IsZero() {
		eventTime = now
	}

	ev := &store.ClockEvent{
		ID:        s.newID(),
		Identity:  req.Identity,
		Kind:      req.Kind,
		Method:    req.Method,
		EventTime: eventTime.UTC(),
		State:     store.SyncStatePending,
		CreatedAt: now,
	}
	if err := s.queue.Append(ctx, ev); err != nil {
		return nil, err
	}
	s.metrics.EventAppended(string(ev.Kind), string(ev.Method))
	return ev, nil
}

// ClockByFace identifies probe and queues a FACE event for the match.
// Nothing is queued when there is no match.
func (s *Service) ClockByFace(ctx context.Context, probe []float32, kind store.EventKind, eventTime time.Time) (*store.ClockEvent, matcher.Result, error) {
	if !kind.Valid() {
		return nil, matcher.Result{}, pcerr.Errorf(pcerr.CodeStoreEventAppendInvalid, "invalid event kind %q", kind)
	}

	result, err := s.Identify(ctx, probe)
	if err != nil {
		return nil, matcher.Result{}, err
	}

	ev, err := s.Clock(ctx, ClockRequest{
		Identity:  result.Identity,
		Kind:      kind,
		Method:    store.AuthMethodFace,
		EventTime: eventTime,
	})
	if err != nil {
		return nil, result, err
	}
	return ev, result, nil
}

// Reset clears the local reference snapshot. Queued events are kept; they
// still have to reach the backend.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.embeddings.Clear(ctx); err != nil {
		return err
	}
	s.metrics.SetSnapshotRecords(0)
	slog.Info("terminal reset, reference data cleared")
	return nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	records := s.embeddings.LoadAll(ctx)
	pending, err := s.queue.CountPending(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		DeviceID:   s.cfg.DeviceID,
		Records:    len(records),
		Dimensions: store.Dimensions(records),
		Pending:    pending,
		Threshold:  s.cfg.Threshold,
	}
	if s.health != nil {
		m := s.health.Metrics()
		st.Remote = &m
	}
	return st, nil
}

// Pending lists queued events oldest first.
func (s *Service) Pending(ctx context.Context) ([]*store.ClockEvent, error) {
	return s.queue.ListPending(ctx)
}

// ObservePending forwards the queue's change feed.
func (s *Service) ObservePending(ctx context.Context) (<-chan []store.ClockEvent, error) {
	return s.queue.ObservePending(ctx)
}

// PurgeSynced drops SYNCED events synced before cutoff. PENDING events are
// never touched.
func (s *Service) PurgeSynced(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.queue.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("purged synced events", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
