// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

const (
	apiKeyHeader      = "X-Device-API-Key"
	idempotencyHeader = "Idempotency-Key"

	// A full roster of 512-float vectors is a few MB of JSON.
	maxResponseBytes = 64 << 20
)

var _ Authority = (*Client)(nil)

// Client implements Authority over the backend's JSON API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout wins over the
// timeout passed to NewClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient targets baseURL (scheme and host, optional path prefix). apiKey
// may be empty before registration.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, pcerr.Errorf(pcerr.CodeRemoteRequestInvalid, "invalid remote base URL %q", baseURL)
	}

	c := &Client{
		baseURL: u.String(),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// --- wire types ---

type registerBody struct {
	DeviceID     string `json:"device_id"`
	LocationName string `json:"location_name"`
	Name         string `json:"name,omitempty"`
}

type registerResponse struct {
	DeviceID     string `json:"device_id"`
	APIKey       string `json:"api_key"`
	LocationID   string `json:"location_id"`
	LocationName string `json:"location_name"`
}

type embeddingResponse struct {
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Embedding  []float32 `json:"embedding"`
}

type timeEventBody struct {
	EventID    string `json:"event_id"`
	EmployeeID string `json:"employee_id"`
	EventType  string `json:"event_type"`
	Method     string `json:"method"`
	EventTime  string `json:"event_time"`
}

type timeEventResponse struct {
	ID string `json:"id"`
}

// wireEventType maps queue kinds to the backend's IN/OUT vocabulary.
func wireEventType(k store.EventKind) string {
	switch k {
	case store.EventKindClockIn:
		return "IN"
	case store.EventKindClockOut:
		return "OUT"
	default:
		return string(k)
	}
}

// --- operations ---

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if req.DeviceID == "" || req.LocationName == "" {
		return nil, pcerr.New(pcerr.CodeRemoteDeviceRegisterInvalid, "device id and location name are required")
	}

	var out registerResponse
	status, detail, err := c.do(ctx, http.MethodPost, "/api/devices/register", nil,
		registerBody{DeviceID: req.DeviceID, LocationName: req.LocationName, Name: req.Name}, &out)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, c.statusError(status, detail, pcerr.CodeRemoteDeviceRegisterInvalid, "registering device")
	}
	if out.APIKey == "" {
		return nil, pcerr.New(pcerr.CodeRemoteResponseInvalid, "registration response has no api key")
	}

	return &Registration{
		DeviceID:     out.DeviceID,
		APIKey:       out.APIKey,
		LocationID:   out.LocationID,
		LocationName: out.LocationName,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	status, detail, err := c.do(ctx, http.MethodPost, "/api/devices/ping", nil, nil, nil)
	if err != nil {
		return err
	}
	if !success(status) {
		return c.statusError(status, detail, pcerr.CodeRemoteRequestInvalid, "pinging backend")
	}
	return nil
}

func (c *Client) FetchEmbeddings(ctx context.Context) ([]store.EmbeddingRecord, error) {
	var out []embeddingResponse
	status, detail, err := c.do(ctx, http.MethodGet, "/api/employees/embeddings", nil, nil, &out)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, c.statusError(status, detail, pcerr.CodeRemoteRequestInvalid, "fetching embeddings")
	}

	records := make([]store.EmbeddingRecord, len(out))
	for i, e := range out {
		records[i] = store.EmbeddingRecord{Identity: e.EmployeeID, DisplayName: e.Name, Vector: e.Embedding}
	}
	return records, nil
}

func (c *Client) SubmitEvent(ctx context.Context, ev EventSubmission) (Ack, error) {
	body := timeEventBody{
		EventID:    ev.EventID,
		EmployeeID: ev.Identity,
		EventType:  wireEventType(ev.Kind),
		Method:     string(ev.Method),
		EventTime:  ev.EventTime.UTC().Format(time.RFC3339Nano),
	}
	headers := http.Header{idempotencyHeader: []string{ev.EventID}}

	var out timeEventResponse
	status, detail, err := c.do(ctx, http.MethodPost, "/api/time-events", headers, body, &out)
	if err != nil {
		return Ack{}, pcerr.With(err, pcerr.FieldEventID(ev.EventID))
	}

	switch {
	case status == http.StatusConflict:
		return Ack{Duplicate: true}, nil
	case status >= 500:
		return Ack{}, pcerr.New(pcerr.CodeRemoteTransportUnavailable, "backend error: "+detail,
			pcerr.FieldEventID(ev.EventID), pcerr.FieldStatus(status))
	case status == http.StatusUnauthorized:
		return Ack{}, pcerr.New(pcerr.CodeRemoteAuthUnauthorized, "device not authorized: "+detail,
			pcerr.FieldEventID(ev.EventID), pcerr.FieldStatus(status))
	case !success(status):
		return Ack{}, pcerr.New(pcerr.CodeRemoteEventRejected, detail,
			pcerr.FieldEventID(ev.EventID), pcerr.FieldStatus(status))
	}
	return Ack{RemoteID: out.ID}, nil
}

// --- transport ---

// do sends one request. A non-nil error means the exchange itself failed;
// HTTP error statuses come back as status plus the response detail. dest
// is only decoded on 2xx.
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body, dest any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, "", pcerr.Wrap(err, pcerr.CodeRemoteRequestInvalid, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, "", pcerr.Wrap(err, pcerr.CodeRemoteRequestInvalid, "building request")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", transportError(err, method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, "", transportError(err, method, path)
	}

	if !success(resp.StatusCode) {
		return resp.StatusCode, errorDetail(raw, resp.Status), nil
	}
	if dest != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, dest); err != nil {
			return resp.StatusCode, "", pcerr.Wrapf(err, pcerr.CodeRemoteResponseInvalid, "decoding %s %s response", method, path)
		}
	}
	return resp.StatusCode, "", nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func (c *Client) statusError(status int, detail string, clientCode pcerr.Code, op string) error {
	code := clientCode
	switch {
	case status >= 500:
		code = pcerr.CodeRemoteTransportUnavailable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = pcerr.CodeRemoteAuthUnauthorized
	}
	return pcerr.New(code, fmt.Sprintf("%s: %s", op, detail), pcerr.FieldStatus(status))
}

func transportError(err error, method, path string) error {
	msg := fmt.Sprintf("%s %s failed", method, path)
	if isDialError(err) {
		msg = fmt.Sprintf("%s %s: backend unreachable", method, path)
	}
	return pcerr.Wrap(err, pcerr.CodeRemoteTransportUnavailable, msg)
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

// errorDetail extracts FastAPI-style {"detail": ...} bodies, falling back to
// the raw text or the status line.
func errorDetail(raw []byte, statusLine string) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			return s
		}
		return string(body.Detail)
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return statusLine
}
