package httputil

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request describes an outbound request with explicit query and header fields.
// Query strings are never concatenated by hand; Build encodes them.
type Request struct {
	Method  string
	BaseURL string
	Path    string
	Query   url.Values
	Header  http.Header
}

// NewRequest starts a GET request against baseURL + path
func NewRequest(baseURL, path string) *Request {
	return &Request{
		Method:  http.MethodGet,
		BaseURL: baseURL,
		Path:    path,
		Query:   url.Values{},
		Header:  http.Header{},
	}
}

// Param sets a query parameter
func (r *Request) Param(key, value string) *Request {
	r.Query.Set(key, value)
	return r
}

// SetHeader sets a request header
func (r *Request) SetHeader(key, value string) *Request {
	r.Header.Set(key, value)
	return r
}

// URL returns the fully encoded request URL
func (r *Request) URL() (string, error) {
	base, err := url.Parse(strings.TrimRight(r.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", r.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: scheme and host required", r.BaseURL)
	}

	if r.Path != "" {
		base = base.JoinPath(r.Path)
		// JoinPath drops a trailing slash that some APIs require
		if strings.HasSuffix(r.Path, "/") && !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
	}
	base.RawQuery = r.Query.Encode()

	return base.String(), nil
}

// Build creates the *http.Request
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	target, err := r.URL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", r.Method, err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return req, nil
}
