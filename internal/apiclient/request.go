package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes an API call independently of any single HTTP attempt.
// The client builds a fresh *http.Request from it for every attempt, which is
// what lets a request rejected with 401 be replayed after a token refresh.
type Request struct {
	Method string
	// Path is resolved against the client's base URL. Absolute URLs are used as is.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewJSONRequest creates a request with body encoded as JSON.
func NewJSONRequest(method, path string, body any) (*Request, error) {
	req := &Request{Method: method, Path: path}
	if body == nil {
		return req, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}
	req.Body = data
	req.Header = http.Header{"Content-Type": []string{"application/json"}}
	return req, nil
}

// build resolves the request against base and creates the HTTP request for one attempt.
func (r *Request) build(ctx context.Context, base *url.URL) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := resolve(base, r.Path)
	if err != nil {
		return nil, err
	}
	if len(r.Query) > 0 {
		q := target.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// resolve joins path onto base the way a browser joins a relative URL onto a
// base ending in "/": a leading slash on path does not drop the base path.
func resolve(base *url.URL, path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() || base == nil {
		return ref, nil
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return base.ResolveReference(ref), nil
}

// Response is a completed API call.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body is the raw response body.
	Body []byte
	// Data is Body decoded by DecodeBody: a JSON value with json.Number numbers, or the raw text.
	Data any
	// Request is the descriptor that produced this response.
	Request *Request
}

// Scan decodes the JSON body into dst, keeping numbers in interface fields as json.Number.
func (r *Response) Scan(dst any) error {
	if err := scanJSON(r.Body, dst); err != nil {
		return fmt.Errorf("decoding response body for status %d: %w", r.StatusCode, err)
	}
	return nil
}
