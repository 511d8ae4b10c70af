// Package ratelimit implements backoff policy for HTTP 429 responses.
// The Snyk REST API signals rate limiting exclusively through 429 status
// codes; the Retry-After response header, when present, dictates the sleep
// duration before the same request may be re-issued.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limit handling.
var (
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snyk_rate_limit_hits_total",
		Help: "Total number of 429 responses received",
	})

	rateLimitSleepSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snyk_rate_limit_sleep_seconds",
		Help:    "Backoff sleep duration after a 429 response",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	rateLimitExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snyk_rate_limit_exhausted_total",
		Help: "Total number of fetches that exhausted the 429 retry budget",
	})
)

// Defaults for the retry policy.
const (
	// DefaultBackoff is the sleep duration used when a 429 response carries
	// no usable Retry-After header.
	DefaultBackoff = 1 * time.Second

	// DefaultMaxRetries bounds how often a single request is re-issued
	// after consecutive 429 responses.
	DefaultMaxRetries = 5
)

// Policy controls how 429 responses are retried.
type Policy struct {
	// MaxRetries is the maximum number of re-issues after 429 responses.
	MaxRetries int

	// DefaultBackoff is used when Retry-After is absent or unparseable.
	DefaultBackoff time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		DefaultBackoff: DefaultBackoff,
	}
}

// BackoffFor returns the sleep duration mandated by a 429 response.
// Retry-After is accepted in delta-seconds or HTTP-date form.
func (p Policy) BackoffFor(headers http.Header) time.Duration {
	rateLimitHitsTotal.Inc()

	backoff := p.DefaultBackoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	if v := headers.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			backoff = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				backoff = d
			}
		}
	}

	rateLimitSleepSeconds.Observe(backoff.Seconds())
	return backoff
}

// RecordExhausted notes that a fetch ran out of retry budget.
func RecordExhausted() {
	rateLimitExhaustedTotal.Inc()
}
