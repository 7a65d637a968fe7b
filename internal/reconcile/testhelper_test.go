// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package reconcile_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/punchcard-dev/punchcard/internal/remote"
	"github.com/punchcard-dev/punchcard/internal/secrets"
	"github.com/punchcard-dev/punchcard/internal/store"
	"github.com/punchcard-dev/punchcard/internal/store/sqlite"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newQueue(t *testing.T) *sqlite.EventQueue {
	t.Helper()
	q, err := sqlite.NewEventQueue(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func newEmbeddings(t *testing.T) *sqlite.EmbeddingStore {
	t.Helper()
	service := "punchcard-test-" + strings.ReplaceAll(t.Name(), "/", "-")
	sealer := secrets.NewKeyringSealer(secrets.NewKeyringStore(), service)
	s, err := sqlite.NewEmbeddingStore(filepath.Join(t.TempDir(), "embeddings.db"), sealer, store.DefaultSnapshotKeyAlias)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendEvent(t *testing.T, q store.EventQueue, id string, offset time.Duration) {
	t.Helper()
	require.NoError(t, q.Append(context.Background(), &store.ClockEvent{
		ID:        id,
		Identity:  "E-" + id,
		Kind:      store.EventKindClockIn,
		Method:    store.AuthMethodFace,
		EventTime: baseTime.Add(offset),
		CreatedAt: baseTime.Add(offset),
	}))
}

func stateOf(t *testing.T, q store.EventQueue, id string) store.SyncState {
	t.Helper()
	ev, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	return ev.State
}

// fakeAuthority is an in-memory backend. submitErrs maps event ids to the
// error returned for them; onSubmit runs before each submission.
type fakeAuthority struct {
	mu         sync.Mutex
	records    []store.EmbeddingRecord
	fetchErr   error
	fetches    int
	submitErrs map[string]error
	duplicates map[string]bool
	submitted  []string
	onSubmit   func(ev remote.EventSubmission)
}

func (f *fakeAuthority) Register(context.Context, remote.RegisterRequest) (*remote.Registration, error) {
	return &remote.Registration{}, nil
}

func (f *fakeAuthority) Ping(context.Context) error {
	return nil
}

func (f *fakeAuthority) FetchEmbeddings(context.Context) ([]store.EmbeddingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]store.EmbeddingRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeAuthority) SubmitEvent(_ context.Context, ev remote.EventSubmission) (remote.Ack, error) {
	if f.onSubmit != nil {
		f.onSubmit(ev)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, ev.EventID)
	if err := f.submitErrs[ev.EventID]; err != nil {
		return remote.Ack{}, err
	}
	return remote.Ack{Duplicate: f.duplicates[ev.EventID], RemoteID: "r-" + ev.EventID}, nil
}

func (f *fakeAuthority) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func (f *fakeAuthority) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// markFailingQueue accepts submissions but cannot persist the SYNCED state
// for one event id.
type markFailingQueue struct {
	*sqlite.EventQueue
	failID string
}

func (q *markFailingQueue) MarkSynced(ctx context.Context, id string) error {
	if id == q.failID {
		return pcerr.New(pcerr.CodeStoreDatabaseFailure, "disk I/O error", pcerr.FieldEventID(id))
	}
	return q.EventQueue.MarkSynced(ctx, id)
}
