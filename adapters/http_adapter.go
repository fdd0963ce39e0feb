package adapters

import "context"

// HTTPRequest describes a single call to a remote endpoint.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents the response from an HTTP request.
type HTTPResponse struct {
	OK     bool
	Status int
	Body   []byte
}

// HTTPAdapter is an interface for HTTP communication.
// Implement this interface to use custom HTTP clients.
type HTTPAdapter interface {
	// Do performs the request.
	//
	// Parameters:
	//   - ctx: Bounds the whole exchange, including reading the body
	//   - req: Method, URL, headers and optional body
	//
	// Returns HTTP response or error. Non-2xx statuses are not errors.
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}
