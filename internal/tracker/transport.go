// Package tracker is the client side of the tracking contract: it measures a
// page view and posts the payloads the /api/track endpoints accept.
//
// Browser events are replaced by explicit calls (SetVisible, Scroll,
// Intersect, Close), so the same accounting can drive load generators and
// tests.
package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Tracking routes, relative to the API base URL.
const (
	RouteVisit    = "/api/track/visit"
	RouteLocation = "/api/track/location"
	RouteSession  = "/api/track/session"
	RouteSections = "/api/track/sections"
	RouteEvents   = "/api/track/events"
)

// Transport delivers payloads to the tracking API.
//
// Send is the request/response path and reports failures. Beacon is the
// unload path: fire and forget, no retry, nothing to cancel.
type Transport interface {
	Send(ctx context.Context, route string, payload any) error
	Beacon(route string, payload any)
}

// StatusError is returned by Send when the API answers with a non-2xx status.
type StatusError struct {
	Route      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Route, e.StatusCode, e.Body)
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	header  http.Header
	logger  *slog.Logger

	inflight sync.WaitGroup
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = client }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransport) { t.header.Set(key, value) }
}

// WithLogger sets the logger used for beacon failures.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) { t.logger = logger }
}

// NewHTTPTransport creates a transport posting to baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		header:  make(http.Header),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts payload as application/json and waits for the response.
func (t *HTTPTransport) Send(ctx context.Context, route string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", route, err)
	}
	return t.post(ctx, route, "application/json", body)
}

// Beacon posts payload as text/plain from a detached goroutine, the way
// navigator.sendBeacon does. Failures are logged and dropped.
func (t *HTTPTransport) Beacon(route string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		t.logger.Debug("Dropped beacon", slog.String("route", route), slog.Any("error", err))
		return
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		if err := t.post(context.Background(), route, "text/plain;charset=UTF-8", body); err != nil {
			t.logger.Debug("Beacon failed", slog.String("route", route), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every beacon sent so far has completed.
func (t *HTTPTransport) Wait() {
	t.inflight.Wait()
}

func (t *HTTPTransport) post(ctx context.Context, route, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", route, err)
	}
	for key, values := range t.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Route: route, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
