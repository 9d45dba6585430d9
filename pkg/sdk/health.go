package finrag

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Health fetches the server health. A degraded server answers 503 with a report,
// which is returned without error.
func (c *Client) Health(ctx context.Context) (hs HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("finrag: health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusServiceUnavailable:
		err = decodeJSON(resp.Body, &hs)
		return hs, err
	default:
		return HealthStatus{}, decodeAPIError(resp, req.Header.Get("X-Request-ID"))
	}
}

// Ping returns nil when the server reports itself healthy.
func (c *Client) Ping(ctx context.Context) error {
	hs, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if hs.Status != "healthy" {
		return fmt.Errorf("finrag: server %s: %v", hs.Status, hs.Checks)
	}
	return nil
}
