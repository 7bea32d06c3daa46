// Package scopus provides a client for the Elsevier Scopus Search and
// Author Retrieval APIs.
//
// The search side walks the full result set for an affiliation query through
// a rate-gated paginator; the author side fetches one profile document per
// author id through a second, independently budgeted gate. Both gates are
// created fresh for each call and discarded with it, so one run's budget
// never leaks into the next.
package scopus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/fetch"
	"github.com/helixir/affiliation-harvester/internal/observability"
)

const (
	// DefaultBaseURL is the default Scopus API base URL.
	DefaultBaseURL = "https://api.elsevier.com/content"

	// DefaultRateLimit is the default request smoothing limit (5 requests
	// per second).
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the default number of results per search page.
	DefaultPageSize = 25

	// DefaultSearchGateLimit is the published Scopus quota for search
	// requests per window.
	DefaultSearchGateLimit = 25

	// DefaultAuthorGateLimit is the published Scopus quota for author
	// retrieval requests per window.
	DefaultAuthorGateLimit = 8

	// apiKeyHeader is the HTTP header name for the Scopus API key.
	apiKeyHeader = "X-ELS-APIKey"

	// acceptXML asks the API for its XML representation.
	acceptXML = "application/xml"

	// searchGateName and authorGateName label gate and request metrics.
	searchGateName = "search"
	authorGateName = "author"
)

// Config holds configuration for the Scopus client.
type Config struct {
	// APIKey is the Elsevier API key for authentication.
	// Required for all Scopus API requests.
	APIKey string

	// BaseURL is the Scopus API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MaxRetries is the maximum number of retries per request.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// RateLimit is the request smoothing limit in requests per second.
	RateLimit float64

	// PageSize is the number of results requested per search page.
	PageSize int

	// SearchGateLimit caps search requests admitted per gate period.
	SearchGateLimit int

	// SearchGatePeriod is the search gate's sliding window length.
	SearchGatePeriod time.Duration

	// AuthorGateLimit caps author retrieval requests admitted per gate period.
	AuthorGateLimit int

	// AuthorGatePeriod is the author gate's sliding window length.
	AuthorGatePeriod time.Duration

	// GateRetryInterval is the wait between admission attempts while a
	// gate's window is full.
	GateRetryInterval time.Duration

	// Metrics optionally records gate waits and request outcomes. May be nil.
	Metrics *observability.Metrics
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SearchGateLimit == 0 {
		c.SearchGateLimit = DefaultSearchGateLimit
	}
	if c.SearchGatePeriod == 0 {
		c.SearchGatePeriod = fetch.DefaultGatePeriod
	}
	if c.AuthorGateLimit == 0 {
		c.AuthorGateLimit = DefaultAuthorGateLimit
	}
	if c.AuthorGatePeriod == 0 {
		c.AuthorGatePeriod = fetch.DefaultGatePeriod
	}
	if c.GateRetryInterval == 0 {
		c.GateRetryInterval = fetch.DefaultGateRetryInterval
	}
}

// Client talks to the Scopus Search and Author Retrieval APIs.
type Client struct {
	config     Config
	httpClient *fetch.HTTPClient
}

// New creates a new Scopus client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := fetch.NewHTTPClient(fetch.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
		Metrics:      cfg.Metrics,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Scopus client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *fetch.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// SearchPages walks the full result set for the given affiliation ids and
// returns every raw page, ordered by offset. The returned set carries the
// authoritative total and the offsets that failed; a failed priming fetch
// fails the whole call.
func (c *Client) SearchPages(ctx context.Context, affiliationIDs []string, yearFloor int) (*fetch.PageSet, error) {
	query := buildSearchQuery(affiliationIDs, yearFloor)
	if query == "" {
		return nil, domain.NewValidationError("affiliation_ids", "at least one affiliation id is required")
	}

	gate := fetch.NewGate(c.config.SearchGateLimit, c.config.SearchGatePeriod, c.config.GateRetryInterval)
	requester := fetch.NewRequester(gate, c.httpClient,
		fetch.WithHeader("Accept", acceptXML),
		fetch.WithMetrics(c.config.Metrics, searchGateName),
	)

	params := url.Values{}
	params.Set("query", query)
	params.Set("count", strconv.Itoa(c.config.PageSize))
	params.Set("view", "COMPLETE")

	searchURL := c.searchURL()
	paginator := fetch.NewPaginator(c.config.PageSize, func(ctx context.Context, offset int) ([]byte, error) {
		return requester.FetchOffset(ctx, searchURL, params, offset)
	}, totalResults)

	return paginator.Run(ctx)
}

// FetchAuthorProfiles fetches one raw profile document per author id,
// concurrently, through the author retrieval gate. Documents come back in
// the order the ids were given; failed ids land in the failed partition.
func (c *Client) FetchAuthorProfiles(ctx context.Context, authorIDs []string) (*fetch.BatchResult, error) {
	gate := fetch.NewGate(c.config.AuthorGateLimit, c.config.AuthorGatePeriod, c.config.GateRetryInterval)
	requester := fetch.NewRequester(gate, c.httpClient,
		fetch.WithHeader("Accept", acceptXML),
		fetch.WithMetrics(c.config.Metrics, authorGateName),
	)

	params := url.Values{}
	params.Set("view", "ENHANCED")

	return fetch.FetchAll(ctx, authorIDs, func(ctx context.Context, authorID string) ([]byte, error) {
		return requester.Fetch(ctx, c.authorURL(authorID), params)
	})
}

// PageSize returns the configured results-per-page, for callers sizing
// their own accumulators.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// searchURL returns the Scopus Search API endpoint.
func (c *Client) searchURL() string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/search/scopus"
}

// authorURL returns the Author Retrieval API endpoint for one author.
func (c *Client) authorURL(authorID string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/author/author_id/" + url.PathEscape(authorID)
}

// buildSearchQuery assembles the compound affiliation query: AF-ID terms
// OR-ed together, AND-ed with a publication year floor when one is given.
// No affiliation ids means no query.
func buildSearchQuery(affiliationIDs []string, yearFloor int) string {
	terms := make([]string, 0, len(affiliationIDs))
	for _, id := range affiliationIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf("AF-ID(%s)", id))
	}
	if len(terms) == 0 {
		return ""
	}

	query := strings.Join(terms, " OR ")
	if len(terms) > 1 {
		query = "(" + query + ")"
	}
	if yearFloor > 0 {
		query = fmt.Sprintf("%s AND PUBYEAR > %d", query, yearFloor)
	}
	return query
}

// totalResults extracts the authoritative total from a raw search page; it
// primes the paginator.
func totalResults(body []byte) (int, error) {
	var page SearchResults
	if err := DecodeDocument(body, &page); err != nil {
		return 0, fmt.Errorf("decoding search envelope: %w", err)
	}
	return page.TotalResults, nil
}
