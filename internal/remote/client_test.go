// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/punchcard-dev/punchcard/internal/remote"
	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := remote.NewClient(srv.URL, "pk_test", 2*time.Second)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func submission() remote.EventSubmission {
	return remote.EventSubmission{
		EventID:   "8b4f6c1e-2f7a-4b0e-9a51-3c2d1e0f9a77",
		Identity:  "E100",
		Kind:      store.EventKindClockOut,
		Method:    store.AuthMethodFace,
		EventTime: time.Date(2026, 3, 2, 17, 30, 0, 500, time.FixedZone("CET", 3600)),
	}
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url", "http://"} {
		_, err := remote.NewClient(raw, "", time.Second)
		assert.Error(t, err, raw)
	}
	_, err := remote.NewClient("https://hr.example.com/", "", time.Second)
	assert.NoError(t, err)
}

func TestSubmitEvent_SendsWireFormat(t *testing.T) {
	var got map[string]any
	var headers http.Header
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/time-events", r.URL.Path)
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]string{"id": "remote-42"})
	}))

	ack, err := c.SubmitEvent(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, remote.Ack{RemoteID: "remote-42"}, ack)

	assert.Equal(t, "pk_test", headers.Get("X-Device-API-Key"))
	assert.Equal(t, "8b4f6c1e-2f7a-4b0e-9a51-3c2d1e0f9a77", headers.Get("Idempotency-Key"))
	assert.Equal(t, "OUT", got["event_type"])
	assert.Equal(t, "FACE", got["method"])
	assert.Equal(t, "E100", got["employee_id"])
	assert.Equal(t, "8b4f6c1e-2f7a-4b0e-9a51-3c2d1e0f9a77", got["event_id"])
	assert.Equal(t, "2026-03-02T16:30:00.0000005Z", got["event_time"])
}

func TestSubmitEvent_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		wantAck   remote.Ack
		wantCode  pcerr.Code
		wantInMsg string
	}{
		{name: "created", status: 201, body: map[string]string{"id": "r1"}, wantAck: remote.Ack{RemoteID: "r1"}},
		{name: "ok without body", status: 200, wantAck: remote.Ack{}},
		{name: "duplicate", status: 409, body: map[string]string{"detail": "already recorded"}, wantAck: remote.Ack{Duplicate: true}},
		{name: "state machine", status: 400, body: map[string]string{"detail": "Employee already clocked in"}, wantCode: pcerr.CodeRemoteEventRejected, wantInMsg: "already clocked in"},
		{name: "wrong location", status: 403, body: map[string]string{"detail": "Employee does not belong to device location"}, wantCode: pcerr.CodeRemoteEventRejected},
		{name: "unknown employee", status: 404, body: map[string]string{"detail": "Employee not found"}, wantCode: pcerr.CodeRemoteEventRejected},
		{name: "validation list", status: 422, body: map[string]any{"detail": []map[string]string{{"msg": "bad uuid"}}}, wantCode: pcerr.CodeRemoteEventRejected, wantInMsg: "bad uuid"},
		{name: "bad key", status: 401, body: map[string]string{"detail": "Invalid API key"}, wantCode: pcerr.CodeRemoteAuthUnauthorized},
		{name: "server error", status: 503, wantCode: pcerr.CodeRemoteTransportUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			}))

			ack, err := c.SubmitEvent(context.Background(), submission())
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAck, ack)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, pcerr.CodeOf(err))
			assert.Equal(t, submission().EventID, pcerr.FieldsOf(err)["event_id"])
			if tt.wantInMsg != "" {
				assert.Contains(t, err.Error(), tt.wantInMsg)
			}
		})
	}
}

func TestSubmitEvent_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := remote.NewClient(url, "pk_test", time.Second)
	require.NoError(t, err)

	_, err = c.SubmitEvent(context.Background(), submission())
	require.Error(t, err)
	assert.True(t, pcerr.IsUnavailable(err))
	assert.Contains(t, err.Error(), "unreachable")
}

func TestSubmitEvent_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	c, err := remote.NewClient(srv.URL, "pk_test", 50*time.Millisecond)
	require.NoError(t, err)

	_, err = c.SubmitEvent(context.Background(), submission())
	require.Error(t, err)
	assert.True(t, pcerr.IsUnavailable(err))
}

func TestFetchEmbeddings(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/employees/embeddings", r.URL.Path)
		assert.Equal(t, "pk_test", r.Header.Get("X-Device-API-Key"))
		writeJSON(w, 200, []map[string]any{
			{"employee_id": "E1", "name": "Ada", "embedding": []float32{0.25, -0.5}},
			{"employee_id": "E2", "name": "Grace", "embedding": []float32{1, 0}},
		})
	}))

	records, err := c.FetchEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []store.EmbeddingRecord{
		{Identity: "E1", DisplayName: "Ada", Vector: []float32{0.25, -0.5}},
		{Identity: "E2", DisplayName: "Grace", Vector: []float32{1, 0}},
	}, records)
}

func TestFetchEmbeddings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 401, map[string]string{"detail": "API key required"})
		}, pcerr.IsUnauthorized},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
		}, pcerr.IsUnavailable},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"not": "a list"}`))
		}, func(err error) bool { return pcerr.HasCode(err, pcerr.CodeRemoteResponseInvalid) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.FetchEmbeddings(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v (code %s)", err, pcerr.CodeOf(err))
		})
	}
}

func TestRegister(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/devices/register", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, 201, map[string]string{
			"device_id":     "kiosk-1",
			"api_key":       "pk_new",
			"location_id":   "loc-7",
			"location_name": "Warehouse",
		})
	}))

	reg, err := c.Register(context.Background(), remote.RegisterRequest{
		DeviceID: "kiosk-1", LocationName: "Warehouse", Name: "Front door",
	})
	require.NoError(t, err)
	assert.Equal(t, &remote.Registration{
		DeviceID: "kiosk-1", APIKey: "pk_new", LocationID: "loc-7", LocationName: "Warehouse",
	}, reg)
	assert.Equal(t, map[string]string{"device_id": "kiosk-1", "location_name": "Warehouse", "name": "Front door"}, body)
}

func TestRegister_Failures(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]string{"detail": "Device already registered"})
	}))

	_, err := c.Register(context.Background(), remote.RegisterRequest{DeviceID: "kiosk-1", LocationName: "W"})
	require.Error(t, err)
	assert.True(t, pcerr.HasCode(err, pcerr.CodeRemoteDeviceRegisterInvalid))
	assert.Contains(t, err.Error(), "already registered")

	_, err = c.Register(context.Background(), remote.RegisterRequest{DeviceID: "kiosk-1"})
	assert.True(t, pcerr.IsInvalidInput(err))
}

func TestPing(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/devices/ping", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestSubmissionFor(t *testing.T) {
	at := time.Now()
	ev := &store.ClockEvent{ID: "e1", Identity: "E1", Kind: store.EventKindClockIn, Method: store.AuthMethodPIN, EventTime: at}
	assert.Equal(t, remote.EventSubmission{
		EventID: "e1", Identity: "E1", Kind: store.EventKindClockIn, Method: store.AuthMethodPIN, EventTime: at,
	}, remote.SubmissionFor(ev))
}
