package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when no other user agent is configured.
const DefaultUserAgent = "ragflow/1.0"

// HTTPTool performs HTTP requests on behalf of a collaborator.
//
// Example:
//
//	h := tool.NewHTTPTool(
//	    tool.WithHeader("Api-Key", key),
//	    tool.WithRateLimit(5, 1),
//	)
//	var out QueryResponse
//	err := h.PostJSON(ctx, host+"/query", req, &out)
type HTTPTool struct {
	client    *http.Client
	limiter   *rate.Limiter
	headers   http.Header
	userAgent string
}

// HTTPOption configures an HTTPTool.
type HTTPOption func(*HTTPTool)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPTool) {
		if c != nil {
			h.client = c
		}
	}
}

// WithRateLimit allows at most perSecond requests per second with the given
// burst. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(h *HTTPTool) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPTool) {
		h.headers.Set(key, value)
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTPTool) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// NewHTTPTool creates an HTTPTool. Timeouts come from the request context.
func NewHTTPTool(opts ...HTTPOption) *HTTPTool {
	h := &HTTPTool{
		client:    &http.Client{},
		headers:   make(http.Header),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Do sends a request and returns the response body. Non-2xx responses are
// reported as *StatusError.
func (h *HTTPTool) Do(ctx context.Context, method, target string, body io.Reader, header http.Header) ([]byte, error) {
	if target == "" {
		return nil, ErrEmptyURL
	}
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range h.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(respBody)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	return respBody, nil
}

// GetJSON issues a GET and decodes the JSON response into out.
func (h *HTTPTool) GetJSON(ctx context.Context, target string, out interface{}) error {
	body, err := h.Do(ctx, http.MethodGet, target, nil, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSON encodes in as the request body and decodes the JSON response into
// out. A nil out discards the response.
func (h *HTTPTool) PostJSON(ctx context.Context, target string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	header := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json"},
	}
	body, err := h.Do(ctx, http.MethodPost, target, bytes.NewReader(payload), header)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(body, out)
}

// PostForm submits form as application/x-www-form-urlencoded and returns the
// raw response body.
func (h *HTTPTool) PostForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	return h.Do(ctx, http.MethodPost, target, strings.NewReader(form.Encode()), header)
}

func decode(body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
