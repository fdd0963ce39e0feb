package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 16 << 20

// NetHTTPAdapter is the standard HTTP adapter implementation using net/http package.
type NetHTTPAdapter struct {
	client *http.Client
}

// Ensure NetHTTPAdapter implements HTTPAdapter interface
var _ HTTPAdapter = (*NetHTTPAdapter)(nil)

// NewNetHTTPAdapter creates a new NetHTTPAdapter instance.
func NewNetHTTPAdapter() *NetHTTPAdapter {
	return NewNetHTTPAdapterWithTimeout(30 * time.Second)
}

// NewNetHTTPAdapterWithTimeout creates a NetHTTPAdapter whose client gives up
// after timeout regardless of the request context.
func NewNetHTTPAdapterWithTimeout(timeout time.Duration) *NetHTTPAdapter {
	return &NetHTTPAdapter{
		client: &http.Client{Timeout: timeout},
	}
}

// Do sends the request and reads the full response body.
func (h *NetHTTPAdapter) Do(ctx context.Context, r *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &HTTPResponse{
		Status: resp.StatusCode,
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Body:   data,
	}, nil
}
