// Package testutil provides a configurable mock Snyk REST API server for
// tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
)

// MockResponse defines the behavior of one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockSnyk is a configurable mock Snyk API server.
type MockSnyk struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount int
	LastRequest  *http.Request
	LastBody     []byte
}

// NewMockSnyk creates a new mock API server.
func NewMockSnyk() *MockSnyk {
	mock := &MockSnyk{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequest = r.Clone(r.Context())
		mock.LastBody = body
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL (usable as the client base URL).
func (m *MockSnyk) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSnyk) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a path, optionally prefixed with a
// method ("PATCH /orgs/o/projects/p").
func (m *MockSnyk) SetHandler(key string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockSnyk) SetResponse(key string, resp MockResponse) {
	m.SetHandler(key, func(w http.ResponseWriter, r *http.Request) {
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/vnd.api+json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetCollection configures a path to serve the given JSON:API resource
// objects across pages of pageSize items each, with next links.
func (m *MockSnyk) SetCollection(path string, items []string, pageSize int) {
	if pageSize <= 0 {
		pageSize = len(items)
		if pageSize == 0 {
			pageSize = 1
		}
	}

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		start := 0
		if after := r.URL.Query().Get("starting_after"); after != "" {
			fmt.Sscanf(after, "%d", &start)
		}

		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}

		next := ""
		if end < len(items) {
			next = fmt.Sprintf("%s?version=2024-10-15&starting_after=%d", path, end)
		}

		w.Header().Set("Content-Type", "application/vnd.api+json")
		page := CollectionDocument(items[start:end], next)
		w.Write([]byte(page))
	})
}

// RateLimitThenSucceed configures a path to answer with 429 the given
// number of times before serving the success body.
func (m *MockSnyk) RateLimitThenSucceed(path string, times int, retryAfter string, success string) {
	var mu sync.Mutex
	count := 0

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		rateLimited := count <= times
		mu.Unlock()

		if rateLimited {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"errors": [{"detail": "Rate limit exceeded"}]}`))
			return
		}

		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.Write([]byte(success))
	})
}

// defaultHandler answers 404 in the API's error document shape.
func (m *MockSnyk) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"errors": [{"status": "404", "detail": "no mock for %s %s"}]}`, r.Method, r.URL.Path)
}

// NewID returns a fresh resource identifier.
func NewID() string {
	return uuid.NewString()
}

// CollectionDocument builds a JSON:API collection body from resource
// object literals and an optional next link.
func CollectionDocument(items []string, next string) string {
	data := "[]"
	if len(items) > 0 {
		data = "["
		for i, item := range items {
			if i > 0 {
				data += ","
			}
			data += item
		}
		data += "]"
	}

	links := "{}"
	if next != "" {
		b, _ := json.Marshal(next)
		links = fmt.Sprintf(`{"next": %s}`, b)
	}

	return fmt.Sprintf(`{"data": %s, "links": %s}`, data, links)
}

// SingleDocument wraps one resource object literal in a document.
func SingleDocument(item string) string {
	return fmt.Sprintf(`{"data": %s}`, item)
}

// GroupObject builds a group resource object literal.
func GroupObject(id, name string) string {
	return fmt.Sprintf(`{"id": %q, "type": "group", "attributes": {"name": %q}}`, id, name)
}

// OrgObject builds an org resource object literal.
func OrgObject(id, name string) string {
	return fmt.Sprintf(`{"id": %q, "type": "org", "attributes": {"name": %q}}`, id, name)
}

// TargetObject builds a target resource object literal.
func TargetObject(id, displayName, url string) string {
	return fmt.Sprintf(`{"id": %q, "type": "target", "attributes": {"display_name": %q, "url": %q}}`,
		id, displayName, url)
}

// ProjectObject builds a project resource object literal referencing one
// target. Pass an empty targetID for a project without a target linkage.
func ProjectObject(id, name, targetID string) string {
	rels := ""
	if targetID != "" {
		rels = fmt.Sprintf(`, "relationships": {"target": {"data": {"id": %q, "type": "target"}}}`, targetID)
	}
	return fmt.Sprintf(`{"id": %q, "type": "project", "attributes": {"name": %q, "status": "active", "target_runtime": "net6.0", "origin": "azure-repos", "tags": []}%s}`,
		id, name, rels)
}
