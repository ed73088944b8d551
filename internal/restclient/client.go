// Package restclient is a small JSON-over-HTTP client shared by the legacy
// and target engine adapters.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dbsmedya/gomigrator/internal/config"
)

// MIME types.
const (
	// JSON is the type of request and response bodies.
	JSON = "application/json"
	// XML is the type of BPMN model downloads.
	XML = "text/xml"
	// AnyType accepts whatever the server produces.
	AnyType = "*/*"
)

// Transport performs the HTTP request.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Code == http.StatusNotFound
}

// Client issues JSON requests against one base URL.
type Client struct {
	baseURL   string
	transport Transport
	headers   http.Header
	limiter   *rate.Limiter
}

// New creates a client from an API configuration. A zero
// RequestsPerSecond disables throttling.
func New(cfg config.APIConfig, transport Transport) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if transport == nil {
		transport = &http.Client{Timeout: cfg.Timeout}
	}

	headers := make(http.Header)
	headers.Set("Accept", JSON)
	switch {
	case cfg.BearerToken != "":
		headers.Set("Authorization", "Bearer "+cfg.BearerToken)
	case cfg.Username != "":
		req := &http.Request{Header: make(http.Header)}
		req.SetBasicAuth(cfg.Username, cfg.Password)
		headers.Set("Authorization", req.Header.Get("Authorization"))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: transport,
		headers:   headers,
		limiter:   limiter,
	}, nil
}

// Get sends a GET request and decodes the response into result. A *[]byte
// result receives the raw body and accepts any content type.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result interface{}) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	accept := ""
	if _, ok := result.(*[]byte); ok {
		accept = AnyType
	}
	return c.do(ctx, http.MethodGet, path, accept, nil, result)
}

// GetRaw sends a GET request with the given Accept header and returns the
// raw body.
func (c *Client) GetRaw(ctx context.Context, path, accept string) ([]byte, error) {
	var raw []byte
	if err := c.do(ctx, http.MethodGet, path, accept, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Post sends body as JSON and decodes the response into result. result may
// be nil for endpoints that return no content.
func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, "", body, result)
}

// do sends one request. A non-empty accept replaces the default JSON Accept
// header.
func (c *Client) do(ctx context.Context, method, path, accept string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		buffer := new(bytes.Buffer)
		if err := json.NewEncoder(buffer).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = buffer
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("can not make new request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != nil {
		req.Header.Set("Content-Type", JSON)
	}

	start := time.Now()
	resp, err := c.transport.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed after %s: %w", method, target, time.Since(start), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read %s %s response: %w", method, target, err)
		}
		*raw = data
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, target, err)
	}
	return nil
}
