package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request is a replayable backend request. The body is held in memory so
// the same request can be sent again after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	retried bool
}

// NewRequest builds a request without a body.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: make(http.Header)}
}

// NewJSONRequest builds a request whose body is v encoded as JSON.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
	}
	req := NewRequest(method, path)
	req.Body = body
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Retried reports whether the request was already replayed after a 401.
func (r *Request) Retried() bool { return r.retried }

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response (status %d): %w", r.StatusCode, err)
	}
	return nil
}
