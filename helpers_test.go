package beacon

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aviamasters/beacon-go/adapters"
	"github.com/aviamasters/beacon-go/internal/docstore"
)

type mockHTTPAdapter struct {
	mu       sync.Mutex
	requests []HTTPRequest
	handler  func(req *HTTPRequest) (*HTTPResponse, error)
}

func (m *mockHTTPAdapter) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return &HTTPResponse{OK: true, Status: 200, Body: []byte(`{}`)}, nil
	}
	return handler(req)
}

func (m *mockHTTPAdapter) calls() []HTTPRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HTTPRequest(nil), m.requests...)
}

func jsonResponse(status int, body string) *HTTPResponse {
	return &HTTPResponse{OK: status >= 200 && status < 300, Status: status, Body: []byte(body)}
}

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func newTestLogger() LoggerAdapter {
	return adapters.NewNoOpLoggerAdapter()
}

// newTestDocstore serves an in-memory document store for the test.
func newTestDocstore(t *testing.T) (*docstore.Server, string) {
	t.Helper()
	store := docstore.New(docstore.Options{APIKey: "test-key"})
	srv := httptest.NewServer(store.Handler())
	t.Cleanup(srv.Close)
	return store, srv.URL + "/b"
}
