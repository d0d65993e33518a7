// Package arxiv implements papersources.Provider over the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arxivist/arxivist-backend/internal/domain"
	"github.com/arxivist/arxivist-backend/internal/observability"
	"github.com/arxivist/arxivist-backend/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (3 requests per second).
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 100

	// MaxPageSize is the largest page arXiv will serve in one response.
	MaxPageSize = 2000

	// DefaultEmptyPageRetries is how many times a spurious empty page is
	// re-requested before the cursor gives up.
	DefaultEmptyPageRetries = 2

	// SourceName is the human-readable name for this provider.
	SourceName = "arXiv"

	queryEndpoint = "query"
)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// PageSize is the number of records fetched per request.
	PageSize int

	// MaxRetries is the retry budget for 429 and 5xx responses.
	MaxRetries int

	// RetryDelay is the base delay between retries and empty page re-requests.
	RetryDelay time.Duration

	// EmptyPageRetries bounds re-requests of an unexpectedly empty page.
	// Negative disables re-requests.
	EmptyPageRetries int

	// UserAgent is sent with every request.
	UserAgent string
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
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.EmptyPageRetries == 0 {
		c.EmptyPageRetries = DefaultEmptyPageRetries
	}
	if c.EmptyPageRetries < 0 {
		c.EmptyPageRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithMetrics records per-request source metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client implements papersources.Provider for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// Ensure Client implements the Provider interface.
var _ papersources.Provider = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	cfg.applyDefaults()
	logger = logger.With().Str("source", SourceName).Logger()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Name:       SourceName,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		UserAgent:  cfg.UserAgent,
		OnRetry: func(attempt int, reason string, delay time.Duration) {
			logger.Warn().
				Int("attempt", attempt).
				Str("reason", reason).
				Dur("delay", delay).
				Msg("retrying arXiv request")
		},
	})

	return NewWithHTTPClient(cfg, httpClient, logger, opts...)
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, opts ...Option) *Client {
	cfg.applyDefaults()

	c := &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable name for this provider.
func (c *Client) Name() string {
	return SourceName
}

// Results returns a lazy cursor over the records matching q.
func (c *Client) Results(ctx context.Context, q papersources.Query) papersources.Cursor {
	return newCursor(ctx, c, q)
}

// buildQueryURL constructs the URL for one page of q.
func (c *Client) buildQueryURL(q papersources.Query, start, size int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/" + queryEndpoint

	query := url.Values{}
	if q.Filter != "" {
		query.Set("search_query", q.Filter)
	}
	if len(q.IDList) > 0 {
		query.Set("id_list", strings.Join(q.IDList, ","))
	}
	query.Set("start", strconv.Itoa(start))
	query.Set("max_results", strconv.Itoa(size))
	if q.SortBy != "" {
		query.Set("sortBy", string(q.SortBy))
	}
	if q.SortOrder != "" {
		query.Set("sortOrder", string(q.SortOrder))
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// fetchPage requests and decodes a single page.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*Feed, error) {
	started := time.Now()

	feed, err := c.doFetch(ctx, pageURL)
	if c.metrics != nil {
		c.metrics.RecordSourceRequest(SourceName, queryEndpoint, time.Since(started).Seconds())
		if err != nil {
			c.metrics.RecordSourceRequestFailed(SourceName, queryEndpoint, errorType(err))
			if errors.Is(err, domain.ErrRateLimited) {
				c.metrics.RecordSourceRateLimited(SourceName)
			}
		}
	}
	return feed, err
}

func (c *Client) doFetch(ctx context.Context, pageURL string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(SourceName, resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	// Parse the Atom XML response (limit body to 10MB).
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if e := feed.apiError(); e != nil {
		return nil, domain.NewExternalAPIError(SourceName, http.StatusBadRequest,
			normalizeWhitespace(e.Summary), domain.ErrInvalidInput)
	}

	return &feed, nil
}

// entryToRecord converts an Atom entry. It returns nil for entries that lack
// an identifier or a parseable publication timestamp.
func entryToRecord(entry *Entry) *papersources.Record {
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return nil
	}

	published, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published))
	if err != nil {
		return nil
	}
	updated, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Updated))
	if err != nil {
		updated = published
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "http://arxiv.org/pdf/" + domain.ArxivIDFromEntryID(entryID)
	}

	return &papersources.Record{
		EntryID:         entryID,
		Title:           normalizeWhitespace(entry.Title),
		Authors:         authors,
		Abstract:        normalizeWhitespace(entry.Summary),
		Published:       published,
		Updated:         updated,
		PDFURL:          pdfURL,
		Categories:      categories,
		PrimaryCategory: entry.PrimaryCategory.Term,
		Comment:         normalizeWhitespace(entry.Comment),
		JournalRef:      normalizeWhitespace(entry.JournalRef),
		DOI:             strings.TrimSpace(entry.DOI),
	}
}

// errorType buckets an error for the source_requests_failed metric.
func errorType(err error) string {
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &apiErr):
		return "status_" + strconv.Itoa(apiErr.StatusCode)
	case strings.Contains(err.Error(), "decoding response"):
		return "decode"
	default:
		return "network"
	}
}

// normalizeWhitespace trims and collapses runs of whitespace, including the
// hard line breaks arXiv puts in titles and abstracts.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
