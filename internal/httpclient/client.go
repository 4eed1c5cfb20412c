// Package httpclient implements the http capability used by network tests.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

var _ model.HTTPClient = Client{}

type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
}

// New creates a client that resolves relative urls against baseURL.
// A timeout of 0 disables the per request timeout, the context of the
// attempt still applies.
func New(baseURL string, timeout time.Duration, c *http.Client) Client {
	if c == nil {
		c = http.DefaultClient
	}

	return Client{http: c, baseURL: strings.TrimSuffix(baseURL, "/"), timeout: timeout}
}

func (c Client) Request(ctx context.Context, r model.Request) (model.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u, err := c.url(r.URL)
	if err != nil {
		return model.Response{}, err
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return model.Response{}, err
	}

	for k, values := range r.Headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	res, err := c.http.Do(req)
	if err != nil {
		return model.Response{}, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return model.Response{}, fmt.Errorf("reading response body: %w", err)
	}

	return model.Response{
		Status:   res.StatusCode,
		Headers:  res.Header,
		Body:     data,
		Duration: time.Since(start),
	}, nil
}

// Get is a shorthand for a GET request without body.
func (c Client) Get(ctx context.Context, path string) (model.Response, error) {
	return c.Request(ctx, model.Request{Method: http.MethodGet, URL: path})
}

func (c Client) url(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", path, err)
	}

	if u.IsAbs() || c.baseURL == "" {
		return path, nil
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path, nil
}

// DecodeJSON unmarshals the body of a response.
func DecodeJSON(res model.Response, v any) error {
	if err := json.Unmarshal(res.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}

	return nil
}

// EncodeJSON is a helper for building request bodies.
func EncodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
