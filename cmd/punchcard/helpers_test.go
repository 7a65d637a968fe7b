// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/punchcard-dev/punchcard/internal/secrets"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	mu   sync.Mutex
	data map[string]string // "service/key" → value
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data["punchcard/"+k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[service+"/"+key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", pcerr.Errorf(pcerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[service+"/"+key]; !ok {
		return pcerr.Errorf(pcerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, service+"/"+key)
	return nil
}

func (m *mockSecretStore) List(service string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if name, ok := strings.CutPrefix(k, service+"/"); ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// useSecretStore swaps the package secret store for the duration of t.
func useSecretStore(t *testing.T, store secrets.Store) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = orig })
}

// cliEnv is an isolated home, config file, and data directory.
type cliEnv struct {
	dir     string
	cfgPath string
	dataDir string
	store   *mockSecretStore
}

// newCLIEnv writes a config file whose extra lines are appended to a base
// that pins the data directory and an unused local API address.
func newCLIEnv(t *testing.T, extra string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	env := &cliEnv{
		dir:     dir,
		cfgPath: filepath.Join(dir, "punchcard.yaml"),
		dataDir: filepath.Join(dir, "data"),
		store:   newMockSecretStore(),
	}
	base := fmt.Sprintf("device:\n  id: kiosk-test\nstorage:\n  data_dir: %s\nserver:\n  listen: 127.0.0.1:1\n", env.dataDir)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(base+extra), 0o600))

	useSecretStore(t, env.store)
	t.Cleanup(viper.Reset)
	return env
}

// run executes one CLI invocation against env with a fresh global viper,
// the way a separate process would see it.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(context.Background(), args...)
}

func (e *cliEnv) runContext(ctx context.Context, args ...string) (string, error) {
	viper.Reset()

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append(args, "--config", e.cfgPath))

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (e *cliEnv) writeVector(t *testing.T, name string, vec []float32) string {
	t.Helper()
	data, err := json.Marshal(vec)
	require.NoError(t, err)
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

type backendEmbedding struct {
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Embedding  []float32 `json:"embedding"`
}

// fakeBackend mimics the backend's JSON API.
type fakeBackend struct {
	*httptest.Server

	mu         sync.Mutex
	embeddings []backendEmbedding
	events     []map[string]any
	apiKeys    []string
	pings      int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		embeddings: []backendEmbedding{
			{EmployeeID: "E1", Name: "Ada", Embedding: []float32{1, 0, 0}},
			{EmployeeID: "E2", Name: "Bo", Embedding: []float32{0, 1, 0}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/devices/register", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]string{
			"device_id":     body["device_id"],
			"api_key":       "issued-key",
			"location_id":   "loc-7",
			"location_name": body["location_name"],
		})
	})
	mux.HandleFunc("POST /api/devices/ping", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.pings++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/employees/embeddings", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.apiKeys = append(b.apiKeys, r.Header.Get("X-Device-API-Key"))
		writeJSON(w, http.StatusOK, b.embeddings)
	})
	mux.HandleFunc("POST /api/time-events", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.events = append(b.events, body)
		n := len(b.events)
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"id": fmt.Sprintf("r-%d", n)})
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBackend) submitted() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.events...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
