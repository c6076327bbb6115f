// Package testutil provides testing utilities for the reference-data
// collector.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines one scripted response from the mock reference API.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRefAPI is a configurable mock of the paginated reference-data API.
// Responses are scripted in order; once the script is exhausted it serves
// empty pages.
type MockRefAPI struct {
	server *httptest.Server
	mu     sync.Mutex
	script []MockResponse

	// Tracking
	RequestCount int
	Requests     []*url.URL
}

// NewMockRefAPI creates a new mock reference API server.
func NewMockRefAPI() *MockRefAPI {
	mock := &MockRefAPI{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		cloned := *r.URL
		mock.Requests = append(mock.Requests, &cloned)

		var resp MockResponse
		if len(mock.script) > 0 {
			resp = mock.script[0]
			mock.script = mock.script[1:]
		} else {
			resp = NewPageResponse(nil, "")
		}
		mock.mu.Unlock()

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
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockRefAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRefAPI) Close() {
	m.server.Close()
}

// Push appends responses to the script.
func (m *MockRefAPI) Push(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRefAPI) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// LastRequest returns the URL of the most recent request, or nil.
func (m *MockRefAPI) LastRequest() *url.URL {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

// PageBody builds a JSON page payload with the given results and an optional
// continuation URL.
func PageBody(results []map[string]any, nextURL string) string {
	payload := map[string]any{
		"status":  "OK",
		"count":   len(results),
		"results": results,
	}
	if nextURL != "" {
		payload["next_url"] = nextURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal page body: %v", err))
	}
	return string(body)
}

// Tickers builds n well-formed ticker result objects with distinct symbols.
func Tickers(n int, prefix string) []map[string]any {
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, map[string]any{
			"ticker":           fmt.Sprintf("%s%d", prefix, i),
			"name":             fmt.Sprintf("%s Company %d", prefix, i),
			"market":           "stocks",
			"locale":           "us",
			"primary_exchange": "XNAS",
		})
	}
	return results
}

// NewPageResponse creates a 200 OK page with standard headers.
func NewPageResponse(results []map[string]any, nextURL string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       PageBody(results, nextURL),
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-RateLimit-Remaining": "50",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-RateLimit-Remaining": "0",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
