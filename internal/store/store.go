// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package store

import (
	"context"
	"time"
)

// EmbeddingStore persists the reference embedding snapshot encrypted at rest.
// The snapshot is replaced wholesale; readers observe either the previous or
// the new snapshot, never a mix.
type EmbeddingStore interface {
	// ReplaceAll seals records and swaps them in as the current snapshot.
	ReplaceAll(ctx context.Context, records []EmbeddingRecord) error
	// LoadAll returns the current snapshot in stored order. Missing,
	// undecryptable, or malformed data yields an empty result.
	LoadAll(ctx context.Context) []EmbeddingRecord
	Get(ctx context.Context, identity string) (*EmbeddingRecord, error)
	Clear(ctx context.Context) error
	Close() error
}

// EventQueue is the durable log of clock events awaiting sync.
type EventQueue interface {
	// Append durably records a PENDING event. The row is on disk when
	// Append returns.
	Append(ctx context.Context, event *ClockEvent) error
	// ListPending returns PENDING events ordered by event time, ties broken
	// by insertion order.
	ListPending(ctx context.Context) ([]*ClockEvent, error)
	// MarkSynced moves an event to SYNCED. Marking an already SYNCED event
	// succeeds without change.
	MarkSynced(ctx context.Context, id string) error
	// ObservePending emits the pending list now and after every change.
	// Slow receivers only see the latest list. The channel closes when ctx
	// is done.
	ObservePending(ctx context.Context) (<-chan []ClockEvent, error)

	Get(ctx context.Context, id string) (*ClockEvent, error)
	CountPending(ctx context.Context) (int, error)
	// Purge deletes SYNCED events synced before the cutoff and reports how
	// many were removed. PENDING events are never purged.
	Purge(ctx context.Context, syncedBefore time.Time) (int64, error)
	Close() error
}
