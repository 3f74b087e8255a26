package testutils

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// MockFeedServer serves a configurable rate feed document
type MockFeedServer struct {
	server   *httptest.Server
	requests atomic.Int64

	mu         sync.Mutex
	statusCode int
	body       string
	delay      time.Duration
}

// NewMockFeedServer starts a server answering 200 with MockFeedBody
func NewMockFeedServer() *MockFeedServer {
	mock := &MockFeedServer{
		statusCode: http.StatusOK,
		body:       MockFeedBody,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

func (m *MockFeedServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mu.Lock()
	statusCode, body, delay := m.statusCode, m.body, m.delay
	m.mu.Unlock()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

// SetResponse replaces the status code and body served from now on
func (m *MockFeedServer) SetResponse(statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = statusCode
	m.body = body
}

// SetDelay makes every response wait before being written
func (m *MockFeedServer) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Requests returns how many requests the server has received
func (m *MockFeedServer) Requests() int64 {
	return m.requests.Load()
}

// URL returns the feed URL
func (m *MockFeedServer) URL() string {
	return m.server.URL + "/v1/currencies/usd.json"
}

// Close closes the mock server
func (m *MockFeedServer) Close() {
	m.server.Close()
}
