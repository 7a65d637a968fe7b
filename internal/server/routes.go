// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/punchcard-dev/punchcard/internal/matcher"
	"github.com/punchcard-dev/punchcard/internal/reconcile"
	"github.com/punchcard-dev/punchcard/internal/store"
	"github.com/punchcard-dev/punchcard/internal/terminal"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
	if svc.metrics != nil {
		s.router.Handle("/metrics", svc.metrics)
	}
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "terminal-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Terminal status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-pending-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/pending",
		Summary:     "List events waiting to be synced",
		Tags:        []string{"events"},
	}, s.handleListPending)

	huma.Register(s.api, huma.Operation{
		OperationID: "identify",
		Method:      http.MethodPost,
		Path:        "/api/v1/identify",
		Summary:     "Match a face embedding against the local snapshot",
		Tags:        []string{"matching"},
	}, s.handleIdentify)

	huma.Register(s.api, huma.Operation{
		OperationID:   "clock",
		Method:        http.MethodPost,
		Path:          "/api/v1/clock",
		Summary:       "Record a clock-in or clock-out",
		Description:   "Send either a face embedding (identity resolved by matching) or an identity with a method.",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusCreated,
	}, s.handleClock)

	huma.Register(s.api, huma.Operation{
		OperationID: "sync-embeddings",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/embeddings",
		Summary:     "Pull the embedding snapshot from the backend",
		Tags:        []string{"sync"},
	}, s.handleSyncEmbeddings)

	huma.Register(s.api, huma.Operation{
		OperationID: "sync-events",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/events",
		Summary:     "Push pending events to the backend",
		Tags:        []string{"sync"},
	}, s.handleSyncEvents)
}

// --- Request/Response types for huma ---

type statusOutput struct {
	Body terminal.Status
}

type listPendingOutput struct {
	Body struct {
		Events []EventView `json:"events"`
	}
}

type identifyInput struct {
	Body struct {
		Vector []float32 `json:"vector" minItems:"1" doc:"Face embedding from the generator"`
	}
}

type identifyOutput struct {
	Body matcher.Result
}

type clockInput struct {
	Body struct {
		Identity  string     `json:"identity,omitempty" doc:"Employee identity for a manual clock"`
		Vector    []float32  `json:"vector,omitempty" doc:"Face embedding; the identity is resolved by matching"`
		Kind      string     `json:"kind" doc:"CLOCK_IN or CLOCK_OUT (IN and OUT accepted)"`
		Method    string     `json:"method,omitempty" doc:"FACE or PIN; manual clocks default to PIN"`
		EventTime *time.Time `json:"event_time,omitempty" doc:"Capture time, defaults to now"`
	}
}

type clockOutput struct {
	Body struct {
		Event EventView       `json:"event"`
		Match *matcher.Result `json:"match,omitempty"`
	}
}

type syncEmbeddingsOutput struct {
	Body struct {
		Records int `json:"records" doc:"Records in the new snapshot"`
	}
}

type syncEventsOutput struct {
	Body reconcile.PushResult
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	st, err := s.services.terminal.Status(ctx)
	if err != nil {
		return nil, apiError(err, "reading terminal status")
	}
	return &statusOutput{Body: st}, nil
}

func (s *Server) handleListPending(ctx context.Context, _ *struct{}) (*listPendingOutput, error) {
	events, err := s.services.terminal.Pending(ctx)
	if err != nil {
		return nil, apiError(err, "listing pending events")
	}
	out := &listPendingOutput{}
	out.Body.Events = make([]EventView, 0, len(events))
	for _, ev := range events {
		out.Body.Events = append(out.Body.Events, viewOf(ev))
	}
	return out, nil
}

func (s *Server) handleIdentify(ctx context.Context, input *identifyInput) (*identifyOutput, error) {
	res, err := s.services.terminal.Identify(ctx, input.Body.Vector)
	if err != nil {
		return nil, apiError(err, "identify")
	}
	return &identifyOutput{Body: res}, nil
}

func (s *Server) handleClock(ctx context.Context, input *clockInput) (*clockOutput, error) {
	kind, err := store.ParseEventKind(input.Body.Kind)
	if err != nil {
		return nil, apiError(err, "clock")
	}
	var eventTime time.Time
	if input.Body.EventTime != nil {
		eventTime = *input.Body.EventTime
	}

	out := &clockOutput{}

	if len(input.Body.Vector) > 0 {
		ev, res, err := s.services.terminal.ClockByFace(ctx, input.Body.Vector, kind, eventTime)
		if err != nil {
			return nil, apiError(err, "clock by face")
		}
		out.Body.Event = viewOf(ev)
		out.Body.Match = &res
		return out, nil
	}

	if input.Body.Identity == "" {
		return nil, huma.Error400BadRequest("either vector or identity is required")
	}
	method := store.AuthMethodPIN
	if input.Body.Method != "" {
		if method, err = store.ParseAuthMethod(input.Body.Method); err != nil {
			return nil, apiError(err, "clock")
		}
	}

	ev, err := s.services.terminal.Clock(ctx, terminal.ClockRequest{
		Identity:  input.Body.Identity,
		Kind:      kind,
		Method:    method,
		EventTime: eventTime,
	})
	if err != nil {
		return nil, apiError(err, "clock")
	}
	out.Body.Event = viewOf(ev)
	return out, nil
}

func (s *Server) handleSyncEmbeddings(ctx context.Context, _ *struct{}) (*syncEmbeddingsOutput, error) {
	if s.services.sync == nil {
		return nil, huma.Error503ServiceUnavailable("no backend configured")
	}
	n, err := s.services.sync.SyncEmbeddings(ctx)
	if err != nil {
		return nil, apiError(err, "embedding sync")
	}
	out := &syncEmbeddingsOutput{}
	out.Body.Records = n
	return out, nil
}

func (s *Server) handleSyncEvents(ctx context.Context, _ *struct{}) (*syncEventsOutput, error) {
	if s.services.sync == nil {
		return nil, huma.Error503ServiceUnavailable("no backend configured")
	}
	result, err := s.services.sync.PushEvents(ctx)
	if err != nil {
		return nil, apiError(err, "event sync")
	}
	if result.Failed == nil {
		result.Failed = []string{}
	}
	if result.MarkFailed == nil {
		result.MarkFailed = []string{}
	}
	return &syncEventsOutput{Body: result}, nil
}

// apiError maps a coded error to its HTTP status.
func apiError(err error, op string) error {
	status := pcerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("request failed", "op", op, "code", pcerr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, op+": "+err.Error())
}
