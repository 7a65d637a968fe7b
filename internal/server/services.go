// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/punchcard-dev/punchcard/internal/matcher"
	"github.com/punchcard-dev/punchcard/internal/reconcile"
	"github.com/punchcard-dev/punchcard/internal/store"
	"github.com/punchcard-dev/punchcard/internal/terminal"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

// TerminalService is the capture flow. *terminal.Service satisfies it.
type TerminalService interface {
	Identify(ctx context.Context, probe []float32) (matcher.Result, error)
	Clock(ctx context.Context, req terminal.ClockRequest) (*store.ClockEvent, error)
	ClockByFace(ctx context.Context, probe []float32, kind store.EventKind, eventTime time.Time) (*store.ClockEvent, matcher.Result, error)
	Status(ctx context.Context) (terminal.Status, error)
	Pending(ctx context.Context) ([]*store.ClockEvent, error)
	ObservePending(ctx context.Context) (<-chan []store.ClockEvent, error)
}

// SyncService triggers reconciliation passes. *reconcile.Reconciler
// satisfies it.
type SyncService interface {
	SyncEmbeddings(ctx context.Context) (int, error)
	PushEvents(ctx context.Context) (reconcile.PushResult, error)
}

// Services holds dependencies injected into route handlers.
type Services struct {
	terminal TerminalService
	sync     SyncService  // nil on an offline-only terminal
	metrics  http.Handler // nil = no /metrics route
}

type ServicesOption func(*Services)

func WithSync(s SyncService) ServicesOption {
	return func(svc *Services) { svc.sync = s }
}

func WithMetricsHandler(h http.Handler) ServicesOption {
	return func(svc *Services) { svc.metrics = h }
}

func NewServices(term TerminalService, opts ...ServicesOption) (*Services, error) {
	if term == nil {
		return nil, pcerr.New(pcerr.CodeServerConfigInvalid, "terminal service is required")
	}
	s := &Services{terminal: term}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EventView is the API shape of a queued clock event.
type EventView struct {
	ID        string     `json:"id"`
	Identity  string     `json:"identity"`
	Kind      string     `json:"kind" enum:"CLOCK_IN,CLOCK_OUT"`
	Method    string     `json:"method" enum:"FACE,PIN"`
	EventTime time.Time  `json:"event_time"`
	State     string     `json:"sync_state" enum:"PENDING,SYNCED"`
	CreatedAt time.Time  `json:"created_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

func viewOf(ev *store.ClockEvent) EventView {
	v := EventView{
		ID:        ev.ID,
		Identity:  ev.Identity,
		Kind:      string(ev.Kind),
		Method:    string(ev.Method),
		EventTime: ev.EventTime,
		State:     string(ev.State),
		CreatedAt: ev.CreatedAt,
	}
	if !ev.SyncedAt.IsZero() {
		t := ev.SyncedAt
		v.SyncedAt = &t
	}
	return v
}
