// Package metrics provides the centralized Prometheus metrics registry for
// the tag updater. All metrics are defined in their respective packages
// (client, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the tool.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - snyk_api_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - snyk_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - snyk_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - snyk_rate_limit_hits_total (Counter): 429 responses received
//   - snyk_rate_limit_sleep_seconds (Histogram): Backoff sleep duration after a 429
//   - snyk_rate_limit_exhausted_total (Counter): Fetches that exhausted the retry budget
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(snyk_api_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(snyk_api_request_duration_seconds_bucket[5m]))
//
//   # Rate Limit Pressure
//   rate(snyk_rate_limit_hits_total[5m]) / rate(snyk_api_requests_total[5m])
