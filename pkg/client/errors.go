package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = errors.New("snyk API token is required")

	// ErrRateLimitExceeded is returned when the 429 retry budget is spent.
	ErrRateLimitExceeded = errors.New("rate limit retry budget exhausted")

	// ErrContextCancelled is returned when the context is cancelled during backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus categorizes an HTTP status code for observability.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// APIError is a non-2xx response from the API, surfaced with the status and
// body so the operator can act on the server's message.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("snyk API %s error (status %d) on %s %s: %s",
			ClassifyStatus(e.StatusCode), e.StatusCode, e.Method, e.URL, e.Body)
	}
	return fmt.Sprintf("snyk API %s error (status %d) on %s %s",
		ClassifyStatus(e.StatusCode), e.StatusCode, e.Method, e.URL)
}

// NetworkError is a transport-level failure: the request never produced an
// HTTP status.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}
