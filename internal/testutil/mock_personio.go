// Package testutil provides testing utilities for the Personio exporter.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPersonio is a configurable mock Personio API server for testing.
// It serves a default /v1/auth token exchange and lets tests register
// handlers per path.
type MockPersonio struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	AuthCount         int
	LastRequestHeader http.Header
}

// NewMockPersonio creates a new mock server.
func NewMockPersonio() *MockPersonio {
	mock := &MockPersonio{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.URL.Path == "/v1/auth" {
			mock.AuthCount++
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPersonio) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPersonio) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPersonio) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.AuthCount = 0
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockPersonio) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockPersonio) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPersonio) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetAuthCount returns the number of token exchanges performed.
func (m *MockPersonio) GetAuthCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AuthCount
}

// defaultHandler answers the token exchange and gives empty data pages for
// everything else.
func (m *MockPersonio) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.URL.Path == "/v1/auth" {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"success": true, "data": {"token": "test-token", "expires_in": 86400}}`)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"success": true, "data": []}`)
}

// DataPage renders a response envelope with the given records and pagination
// metadata.
func DataPage(records []any, currentPage, totalPages int) string {
	payload := map[string]any{
		"success": true,
		"data":    records,
		"metadata": map[string]int{
			"current_page": currentPage,
			"total_pages":  totalPages,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(body)
}

// EmptyPage renders a response envelope with no records.
func EmptyPage() string {
	return `{"success": true, "data": []}`
}

// Employee renders one master-data record in the Personio attribute
// envelope. Extra attributes are merged over the basics.
func Employee(id int, firstName, lastName, email, department string, extra map[string]any) map[string]any {
	attrs := map[string]any{
		"id":         map[string]any{"label": "ID", "value": id},
		"first_name": map[string]any{"label": "First name", "value": firstName},
		"last_name":  map[string]any{"label": "Last name", "value": lastName},
		"email":      map[string]any{"label": "Email", "value": email},
	}
	if department != "" {
		attrs["department"] = map[string]any{
			"label": "Department",
			"value": map[string]any{"name": department},
		}
	}
	for key, value := range extra {
		attrs[key] = map[string]any{"label": key, "value": value}
	}
	return map[string]any{"type": "Employee", "attributes": attrs}
}

// PagedHandler serves records in fixed-size pages with continuation
// metadata, honoring the page query parameter.
func PagedHandler(records []any, pageSize int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}

		totalPages := (len(records) + pageSize - 1) / pageSize
		if totalPages == 0 {
			totalPages = 1
		}

		start := (page - 1) * pageSize
		end := start + pageSize
		if start > len(records) {
			start = len(records)
		}
		if end > len(records) {
			end = len(records)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, DataPage(records[start:end], page, totalPages))
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response with a
// Retry-After hint.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"success": false, "error": {"message": "Rate limit exceeded"}}`,
		Headers: map[string]string{
			"Retry-After":  fmt.Sprintf("%d", retryAfterSeconds),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"success": false, "error": {"message": "Internal server error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
