// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite

import (
	"context"
	"log/slog"
	"sync"

	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

type pendingLister func(ctx context.Context) ([]*store.ClockEvent, error)

// pendingHub fans the pending list out to watchers. Every send happens with
// mu held, so a watcher channel is never written after it is closed and
// watchers see lists in commit order.
type pendingHub struct {
	list pendingLister

	mu       sync.Mutex
	watchers map[chan []store.ClockEvent]struct{}
	closed   bool
}

func newPendingHub(list pendingLister) *pendingHub {
	return &pendingHub{
		list:     list,
		watchers: make(map[chan []store.ClockEvent]struct{}),
	}
}

func (h *pendingHub) subscribe(ctx context.Context) (<-chan []store.ClockEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, pcerr.New(pcerr.CodeStoreDatabaseFailure, "event queue is closed")
	}

	current, err := h.list(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []store.ClockEvent, 1)
	ch <- snapshotOf(current)
	h.watchers[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.watchers[ch]; ok {
			delete(h.watchers, ch)
			close(ch)
		}
	}()

	return ch, nil
}

func (h *pendingHub) publish(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.watchers) == 0 {
		return
	}

	// The write has already committed; a caller cancelling right after
	// must not starve watchers of the change.
	current, err := h.list(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("pending list refresh failed, watchers keep previous list", "error", err)
		return
	}

	for ch := range h.watchers {
		offerLatest(ch, snapshotOf(current))
	}
}

func (h *pendingHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.watchers {
		delete(h.watchers, ch)
		close(ch)
	}
}

// offerLatest replaces any unread list with v. The caller holds the hub
// lock, making it the only sender, so the send cannot block.
func offerLatest(ch chan []store.ClockEvent, v []store.ClockEvent) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func snapshotOf(events []*store.ClockEvent) []store.ClockEvent {
	out := make([]store.ClockEvent, len(events))
	for i, ev := range events {
		out[i] = *ev
	}
	return out
}
