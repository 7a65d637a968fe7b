// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package remote talks to the backend that owns enrolment data and the
// authoritative time log.
package remote

import (
	"context"
	"time"

	"github.com/punchcard-dev/punchcard/internal/store"
)

// Authority is the remote source of truth. Errors carry pcerr codes:
// CodeRemoteTransportUnavailable when the backend could not be reached,
// CodeRemoteEventRejected when it refused an event on its merits.
type Authority interface {
	Register(ctx context.Context, req RegisterRequest) (*Registration, error)
	Ping(ctx context.Context) error
	FetchEmbeddings(ctx context.Context) ([]store.EmbeddingRecord, error)
	SubmitEvent(ctx context.Context, ev EventSubmission) (Ack, error)
}

type RegisterRequest struct {
	DeviceID     string
	LocationName string
	Name         string
}

// Registration is what the backend hands a newly registered terminal.
type Registration struct {
	DeviceID     string
	APIKey       string
	LocationID   string
	LocationName string
}

// EventSubmission is a queued event as sent upstream. EventID is the
// idempotency token.
type EventSubmission struct {
	EventID   string
	Identity  string
	Kind      store.EventKind
	Method    store.AuthMethod
	EventTime time.Time
}

func SubmissionFor(ev *store.ClockEvent) EventSubmission {
	return EventSubmission{
		EventID:   ev.ID,
		Identity:  ev.Identity,
		Kind:      ev.Kind,
		Method:    ev.Method,
		EventTime: ev.EventTime,
	}
}

// Ack confirms the backend holds the event. Duplicate is set when it had
// already recorded this EventID.
type Ack struct {
	Duplicate bool
	RemoteID  string
}
