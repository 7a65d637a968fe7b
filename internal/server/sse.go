// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/punchcard-dev/punchcard/internal/store"
)

// PendingUpdate is the payload of a "pending" stream event.
type PendingUpdate struct {
	Count    int      `json:"count"`
	EventIDs []string `json:"event_ids"`
}

func pendingUpdateOf(events []store.ClockEvent) PendingUpdate {
	u := PendingUpdate{Count: len(events), EventIDs: make([]string, 0, len(events))}
	for _, ev := range events {
		u.EventIDs = append(u.EventIDs, ev.ID)
	}
	return u
}

func (s *Server) registerSSERoute() {
	s.router.Get("/api/v1/events/stream", s.handlePendingStream)

	// Raw chi route for streaming; its OpenAPI entry is added by hand.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "stream-pending-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/stream",
		Summary:     "Stream pending queue changes via SSE",
		Description: "Emits a `pending` event with the pending count and event ids now and after every change.",
		Tags:        []string{"events"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Server-sent event stream",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{Type: "string", Description: "Server-sent event stream"},
					},
				},
			},
			"503": {Description: "Terminal not configured"},
		},
	})
}

func (s *Server) handlePendingStream(w http.ResponseWriter, r *http.Request) {
	if s.services == nil {
		http.Error(w, `{"error":"terminal not configured"}`, http.StatusServiceUnavailable)
		return
	}

	feed, err := s.services.terminal.ObservePending(r.Context())
	if err != nil {
		slog.Warn("pending stream unavailable", "error", err)
		http.Error(w, `{"error":"pending queue unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for events := range feed {
		data, err := json.Marshal(pendingUpdateOf(events))
		if err != nil {
			slog.Error("encoding pending update", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: pending\ndata: %s\n\n", data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
