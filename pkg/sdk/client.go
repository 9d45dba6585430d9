package finrag

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

	"github.com/google/uuid"
)

const (
	apiPrefix       = "/api/fundamental"
	namespaceHeader = "X-Namespace"
	// error bodies above this are truncated
	maxErrorBody = 64 << 10
)

// Client is the finrag SDK entry point. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	cfg     clientConfig
	obs     *observer
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := clientConfig{}
	for _, o := range opts {
		o.apply(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("finrag: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("finrag: base url %q must be http or https", baseURL)
	}
	if cfg.apiKey == "" && cfg.namespace == "" {
		return nil, errors.New("finrag: namespace required (use WithAPIKey or WithNamespace)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{baseURL: u, cfg: cfg, obs: obs}, nil
}

// endpoint joins the base URL with an already escaped path.
func (c *Client) endpoint(escaped string, query url.Values) string {
	u := *c.baseURL
	raw := u.EscapedPath() + escaped
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path, u.RawPath = p, raw
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, p string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, query), body)
	if err != nil {
		return nil, fmt.Errorf("finrag: build request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.apiKey)
	} else {
		req.Header.Set(namespaceHeader, c.cfg.namespace)
	}
	if c.cfg.userAgent != "" {
		req.Header.Set("User-Agent", c.cfg.userAgent)
	}
	return req, nil
}

// send executes req and returns the response of a 2xx status. Other statuses become *APIError.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finrag: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, decodeAPIError(resp, req.Header.Get("X-Request-ID"))
}

// doJSON sends a request with an optional JSON body and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, p string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("finrag: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, p, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeJSON(resp.Body, out)
}

func decodeJSON(r io.Reader, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("finrag: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, requestID string) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
	if id := resp.Header.Get("X-Request-ID"); id != "" {
		apiErr.RequestID = id
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
