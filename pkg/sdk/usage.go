package finrag

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Usage returns the embedding token budget for the period. An empty period means month.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (r UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	var q url.Values
	if period != "" {
		q = url.Values{"period": {string(period)}}
	}
	err = c.doJSON(ctx, http.MethodGet, "/api/usage", q, nil, &r)
	return r, err
}
