// Package transport delivers telemetry envelopes to the ingest endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/klauspost/compress/gzip"
)

const (
	// CSRFHeader carries the anti-forgery token on every send.
	CSRFHeader = "X-CSRFToken"
	// CSRFCookie is the cookie the token is read from.
	CSRFCookie = "csrftoken"
)

// TokenSource supplies the anti-forgery token, if one is available.
type TokenSource interface {
	Token() (string, bool)
}

// Config describes where and how envelopes are posted.
type Config struct {
	BaseURL  string
	Endpoint string
	Compress bool
	Client   *http.Client
	Tokens   TokenSource
}

// HTTPTransport posts {"events":[...]} envelopes to a single endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	tokens   TokenSource
	compress bool
	logger   *logging.ChanneledLogger
}

// ResolveEndpoint joins a relative endpoint path onto baseURL. Absolute
// endpoints are returned unchanged.
func ResolveEndpoint(baseURL, endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("endpoint %q is relative and no base URL is set", endpoint)
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// NewHTTPTransport validates cfg and builds a transport.
func NewHTTPTransport(cfg Config, logger *logging.ChanneledLogger) (*HTTPTransport, error) {
	endpoint, err := ResolveEndpoint(cfg.BaseURL, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &HTTPTransport{
		endpoint: endpoint,
		client:   client,
		tokens:   cfg.Tokens,
		compress: cfg.Compress,
		logger:   logger,
	}, nil
}

// Endpoint returns the resolved ingest URL.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Encode renders events as a wire envelope.
func Encode(events []telemetry.Event) ([]byte, error) {
	if events == nil {
		events = []telemetry.Event{}
	}
	payload, err := json.Marshal(telemetry.Envelope{Events: events})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return payload, nil
}

// Send posts events as one envelope. Any HTTP response counts as delivered.
func (t *HTTPTransport) Send(ctx context.Context, events []telemetry.Event) error {
	payload, err := Encode(events)
	if err != nil {
		return err
	}
	return t.Post(ctx, payload)
}

// Post sends an already encoded envelope.
func (t *HTTPTransport) Post(ctx context.Context, payload []byte) error {
	body, err := t.body(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if t.tokens != nil {
		if token, ok := t.tokens.Token(); ok {
			req.Header.Set(CSRFHeader, token)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post envelope to %s: %w", t.endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Transport().Debug("Ingest endpoint rejected envelope", "status", resp.StatusCode, "bytes", len(payload))
	}
	return nil
}

func (t *HTTPTransport) body(payload []byte) (io.Reader, error) {
	if !t.compress {
		return bytes.NewReader(payload), nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress envelope: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress envelope: %w", err)
	}
	return &buf, nil
}

// Prime fetches path from the endpoint's origin so the client's cookie jar
// picks up the anti-forgery cookie.
func (t *HTTPTransport) Prime(ctx context.Context, path string) error {
	target, err := ResolveEndpoint(t.endpoint, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.New("token endpoint returned " + resp.Status)
	}
	return nil
}
