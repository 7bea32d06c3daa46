package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/observability"
)

const (
	// DefaultCursorParam is the query parameter carrying the page offset.
	DefaultCursorParam = "start"

	// maxResponseBytes bounds how much of a successful response body is read.
	maxResponseBytes = 10 << 20

	// maxErrorBodyBytes bounds how much of an error body is carried in a
	// TransportError.
	maxErrorBodyBytes = 1 << 20
)

// Requester issues single rate-gated fetches: every call acquires one gate
// permit before the request goes out through the smoothed HTTP client.
// Exactly one outbound call per successful permit.
type Requester struct {
	gate    *Gate
	client  *HTTPClient
	header  http.Header
	cursor  string
	metrics *observability.Metrics
	name    string
}

// RequesterOption customizes a Requester.
type RequesterOption func(*Requester)

// WithHeader adds a fixed header sent with every request.
func WithHeader(key, value string) RequesterOption {
	return func(r *Requester) {
		r.header.Set(key, value)
	}
}

// WithCursorParam overrides the query parameter name that carries the page
// offset.
func WithCursorParam(name string) RequesterOption {
	return func(r *Requester) {
		r.cursor = name
	}
}

// WithMetrics records gate waits and request outcomes under the given name.
func WithMetrics(m *observability.Metrics, name string) RequesterOption {
	return func(r *Requester) {
		r.metrics = m
		r.name = name
	}
}

// NewRequester creates a requester that holds a permit from gate for every
// request issued through client.
func NewRequester(gate *Gate, client *HTTPClient, opts ...RequesterOption) *Requester {
	r := &Requester{
		gate:   gate,
		client: client,
		header: make(http.Header),
		cursor: DefaultCursorParam,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch performs one gated GET against rawURL with the given query
// parameters and returns the response body. A non-200 status or a network
// failure surfaces as a TransportError.
func (r *Requester) Fetch(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	return r.fetch(ctx, rawURL, params, -1)
}

// FetchOffset injects offset as the pagination cursor parameter, then
// fetches like Fetch. Offset zero is injected explicitly, not omitted.
func (r *Requester) FetchOffset(ctx context.Context, rawURL string, params url.Values, offset int) ([]byte, error) {
	if offset < 0 {
		return nil, domain.NewValidationError("offset", fmt.Sprintf("must not be negative, got %d", offset))
	}
	return r.fetch(ctx, rawURL, params, offset)
}

func (r *Requester) fetch(ctx context.Context, rawURL string, params url.Values, offset int) ([]byte, error) {
	gateStart := time.Now()
	if err := r.gate.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquiring gate permit: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordGateAdmission(r.name, time.Since(gateStart).Seconds())
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.NewValidationError("url", err.Error())
	}
	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	if offset >= 0 {
		q.Set(r.cursor, strconv.Itoa(offset))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for key, vals := range r.header {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	reqStart := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordAPIRequestFailed(r.name, "network")
		}
		return nil, domain.NewTransportCauseError(u.String(), err)
	}
	defer resp.Body.Close()

	if r.metrics != nil {
		r.metrics.RecordAPIRequest(r.name, time.Since(reqStart).Seconds())
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if r.metrics != nil {
			r.metrics.RecordAPIRequestFailed(r.name, strconv.Itoa(resp.StatusCode))
		}
		return nil, domain.NewTransportError(u.String(), resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewTransportCauseError(u.String(), err)
	}
	return body, nil
}
