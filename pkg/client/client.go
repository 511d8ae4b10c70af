// Package client provides the core Snyk REST API HTTP client with
// authentication, rate-limit backoff, and error handling.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/snyk-tools/snyk-tag-updater/pkg/logging"
	"github.com/snyk-tools/snyk-tag-updater/pkg/ratelimit"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snyk_api_requests_total",
		Help: "Total Snyk API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snyk_api_request_duration_seconds",
		Help:    "Snyk API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snyk_api_errors_total",
		Help: "Total Snyk API errors by class",
	}, []string{"class"})
)

// API defaults matching the Snyk REST API.
const (
	// DefaultBaseURL is the Snyk REST API root.
	DefaultBaseURL = "https://api.snyk.io/rest"

	// DefaultVersion is the date-stamped API version sent with every request.
	DefaultVersion = "2024-10-15"

	// ContentTypeJSONAPI is the media type the API speaks.
	ContentTypeJSONAPI = "application/vnd.api+json"
)

// Client is the Snyk REST API client. All retrieval and update operations
// go through it; it owns the credential and the rate-limit policy.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration. The token is injected here once at
// startup and passed explicitly; no component reads ambient credential state.
type Config struct {
	// BaseURL is the API root, e.g. https://api.snyk.io/rest.
	BaseURL string

	// Token is the Snyk API token (REQUIRED).
	Token string

	// Version is the API version query parameter added to every request.
	Version string

	// UserAgent identifies this tool in requests.
	UserAgent string

	// Timeout applies per HTTP request.
	Timeout time.Duration

	// RetryPolicy controls 429 backoff-and-retry for retrieval requests.
	RetryPolicy ratelimit.Policy

	// HTTPClient overrides the underlying HTTP client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration for the given token.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Token:       token,
		Version:     DefaultVersion,
		UserAgent:   "snyk-tag-updater/0.1.0",
		Timeout:     30 * time.Second,
		RetryPolicy: ratelimit.DefaultPolicy(),
	}
}

// New creates a new Snyk API client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logging.NewLogger("snyk-client"),
	}, nil
}

// Version returns the API version the client sends with every request.
func (c *Client) Version() string {
	return c.config.Version
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Resolve turns a server-supplied pagination link into an absolute URL.
// The API emits next links either absolute, or server-relative with a
// "/rest" prefix that duplicates the base path.
func (c *Client) Resolve(link string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("empty link")
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link, nil
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	link = strings.TrimPrefix(link, base.Path)
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}

	return c.config.BaseURL + link, nil
}

// Get performs a GET request and returns the response body. Rate-limit
// (429) responses are retried with backoff up to the configured budget;
// any other non-2xx status is returned as an *APIError.
func (c *Client) Get(ctx context.Context, rawurl string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawurl, query, nil, true)
}

// Patch performs a PATCH request with a JSON:API body. Unlike Get it is a
// single attempt: the tag update protocol is not idempotent-retryable, so
// retrying is always the caller's explicit decision.
func (c *Client) Patch(ctx context.Context, rawurl string, query url.Values, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPatch, rawurl, query, body, false)
}

// do executes one logical request, re-issuing it on 429 when retryOn429 is
// set. The same URL is fetched again after each backoff; pagination never
// advances during a retry.
func (c *Client) do(ctx context.Context, method, rawurl string, query url.Values, body []byte, retryOn429 bool) ([]byte, error) {
	fullURL, err := c.buildURL(rawurl, query)
	if err != nil {
		return nil, err
	}
	endpoint := endpointLabel(fullURL)

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var state ratelimit.State
	for {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.config.Token)
		req.Header.Set("Accept", ContentTypeJSONAPI)
		req.Header.Set("User-Agent", c.config.UserAgent)
		if body != nil {
			req.Header.Set("Content-Type", ContentTypeJSONAPI)
		}

		c.logger.Debug().
			Str("method", method).
			Str("endpoint", endpoint).
			Msg("Executing API request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return nil, &NetworkError{Method: method, URL: fullURL, Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			limitBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			apiRequestsTotal.WithLabelValues(endpoint, "429").Inc()
			apiErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()

			if !retryOn429 {
				return nil, &APIError{
					Method:     method,
					URL:        fullURL,
					StatusCode: resp.StatusCode,
					Body:       string(limitBody),
				}
			}
			if state.Exhausted(c.config.RetryPolicy) {
				ratelimit.RecordExhausted()
				c.logger.Error().
					Str("endpoint", endpoint).
					Int("attempts", state.Attempts).
					Msg("Rate limit retry budget exhausted")
				return nil, fmt.Errorf("%w after %d attempts on %s", ErrRateLimitExceeded, state.Attempts, endpoint)
			}

			backoff := c.config.RetryPolicy.BackoffFor(resp.Header)
			state.Record(backoff)
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("attempt", state.Attempts).
				Dur("backoff", backoff).
				Msg("Rate limited, backing off")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(backoff):
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		apiRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			class := ClassifyStatus(resp.StatusCode)
			apiErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("API request error")
			return nil, &APIError{
				Method:     method,
				URL:        fullURL,
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
			}
		}

		if readErr != nil {
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, &NetworkError{Method: method, URL: fullURL, Err: readErr}
		}

		return respBody, nil
	}
}

// buildURL joins the base URL and query parameters, always including the
// API version. Absolute URLs are used as-is so pagination links keep their
// already-encoded parameters.
func (c *Client) buildURL(rawurl string, query url.Values) (string, error) {
	full := rawurl
	if !strings.HasPrefix(rawurl, "http://") && !strings.HasPrefix(rawurl, "https://") {
		resolved, err := c.Resolve(rawurl)
		if err != nil {
			return "", err
		}
		full = resolved
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", full, err)
	}

	q := u.Query()
	for k, vs := range query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if q.Get("version") == "" {
		q.Set("version", c.config.Version)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// endpointLabel strips the query string for metric and log labels.
func endpointLabel(fullURL string) string {
	if u, err := url.Parse(fullURL); err == nil {
		return u.Path
	}
	return fullURL
}
