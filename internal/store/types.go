// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package store

import "time"

// EmbeddingRecord is one enrolled person's reference vector.
type EmbeddingRecord struct {
	Identity    string
	DisplayName string
	Vector      []float32
}

// --- Clock events ---

type EventKind string

const (
	EventKindClockIn  EventKind = "CLOCK_IN"
	EventKindClockOut EventKind = "CLOCK_OUT"
)

type AuthMethod string

const (
	AuthMethodFace AuthMethod = "FACE"
	AuthMethodPIN  AuthMethod = "PIN"
)

// SyncState only ever moves from PENDING to SYNCED.
type SyncState string

const (
	SyncStatePending SyncState = "PENDING"
	SyncStateSynced  SyncState = "SYNCED"
)

// ClockEvent is a single clock-in or clock-out. ID doubles as the remote
// idempotency token and never changes once assigned.
type ClockEvent struct {
	ID        string
	Identity  string
	Kind      EventKind
	Method    AuthMethod
	EventTime time.Time // capture time
	State     SyncState
	CreatedAt time.Time // record time
	SyncedAt  time.Time // zero while PENDING
}
