// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

var _ store.EventQueue = (*EventQueue)(nil)

// seq records insertion order and breaks ties between equal event times.
const eventsDDL = `
CREATE TABLE IF NOT EXISTS clock_events (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	identity      TEXT    NOT NULL,
	kind          TEXT    NOT NULL,
	method        TEXT    NOT NULL,
	event_time_ns INTEGER NOT NULL,
	sync_state    TEXT    NOT NULL DEFAULT 'PENDING',
	created_at_ns INTEGER NOT NULL,
	synced_at_ns  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_clock_events_pending
	ON clock_events(sync_state, event_time_ns, seq);
`

const eventColumns = `id, identity, kind, method, event_time_ns, sync_state, created_at_ns, synced_at_ns`

// EventQueue implements store.EventQueue on a single-writer SQLite database.
type EventQueue struct {
	db  *sql.DB
	hub *pendingHub
	now func() time.Time
}

func NewEventQueue(dbPath string) (*EventQueue, error) {
	db, err := openDB(dbPath, eventsDDL)
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreDatabaseFailure, "opening event queue")
	}
	// One connection serializes appends and state flips without relying on
	// busy retries.
	db.SetMaxOpenConns(1)

	q := &EventQueue{db: db, now: time.Now}
	q.hub = newPendingHub(q.ListPending)
	return q, nil
}

func (q *EventQueue) Append(ctx context.Context, event *store.ClockEvent) error {
	if event == nil {
		return pcerr.New(pcerr.CodeStoreEventAppendInvalid, "clock event is nil")
	}
	if err := event.Validate(); err != nil {
		return err
	}

	const stmt = `INSERT INTO clock_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, 'PENDING', ?, 0)`
	_, err := q.db.ExecContext(ctx, stmt,
		event.ID,
		event.Identity,
		string(event.Kind),
		string(event.Method),
		toNanos(event.EventTime),
		toNanos(event.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pcerr.Errorf(pcerr.CodeStoreEventAppendConflict, "event %s already queued: %w", event.ID, store.ErrConflict)
		}
		return pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "appending event %s", event.ID)
	}
	event.State = store.SyncStatePending
	event.SyncedAt = time.Time{}

	slog.Info("clock event queued",
		"event_id", event.ID,
		"identity", event.Identity,
		"kind", event.Kind,
		"method", event.Method,
	)
	q.hub.publish(ctx)
	return nil
}

func (q *EventQueue) ListPending(ctx context.Context) ([]*store.ClockEvent, error) {
	const stmt = `SELECT ` + eventColumns + ` FROM clock_events
WHERE sync_state = 'PENDING' ORDER BY event_time_ns ASC, seq ASC`

	rows, err := q.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "listing pending events")
	}
	defer rows.Close()

	var events []*store.ClockEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, pcerr.Wrap(err, pcerr.CodeStoreDatabaseFailure, "scanning pending event")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreDatabaseFailure, "iterating pending events")
	}
	return events, nil
}

func (q *EventQueue) MarkSynced(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE clock_events SET sync_state = 'SYNCED', synced_at_ns = ? WHERE id = ? AND sync_state = 'PENDING'`,
		q.now().UnixNano(), id,
	)
	if err != nil {
		return pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "marking event %s synced", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return pcerr.Wrapf(err, pcerr.CodeStoreDatabaseFailure, "checking rows affected for event %s", id)
	}
	if n == 0 {
		// Either already SYNCED, which is fine, or unknown.
		if _, err := q.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}

	slog.Debug("clock event marked synced", "event_id", id)
	q.hub.publish(ctx)
	return nil
}

func (q *EventQueue) ObservePending(ctx context.Context) (<-chan []store.ClockEvent, error) {
	return q.hub.subscribe(ctx)
}

func (q *EventQueue) Get(ctx context.Context, id string) (*store.ClockEvent, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM clock_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pcerr.Errorf(pcerr.CodeStoreEventGetNotFound, "event %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "getting event %s", id)
	}
	return ev, nil
}

func (q *EventQueue) CountPending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clock_events WHERE sync_state = 'PENDING'`).Scan(&n)
	if err != nil {
		return 0, pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "counting pending events")
	}
	return n, nil
}

func (q *EventQueue) Purge(ctx context.Context, syncedBefore time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM clock_events WHERE sync_state = 'SYNCED' AND synced_at_ns < ?`,
		toNanos(syncedBefore),
	)
	if err != nil {
		return 0, pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "purging synced events")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, pcerr.Wrap(err, pcerr.CodeStoreDatabaseFailure, "checking purged rows")
	}
	if n > 0 {
		slog.Info("purged synced events", "count", n, "synced_before", syncedBefore)
	}
	return n, nil
}

func (q *EventQueue) Close() error {
	q.hub.closeAll()
	return q.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*store.ClockEvent, error) {
	var (
		ev                           store.ClockEvent
		kind, method, state          string
		eventNs, createdNs, syncedNs int64
	)
	if err := row.Scan(&ev.ID, &ev.Identity, &kind, &method, &eventNs, &state, &createdNs, &syncedNs); err != nil {
		return nil, err
	}
	ev.Kind = store.EventKind(kind)
	ev.Method = store.AuthMethod(method)
	ev.State = store.SyncState(state)
	ev.EventTime = fromNanos(eventNs)
	ev.CreatedAt = fromNanos(createdNs)
	ev.SyncedAt = fromNanos(syncedNs)
	return &ev, nil
}
