package oasis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"cloudeng.io/net/ratecontrol"
)

// maxArchiveBytes bounds a single SingleZip download.
const maxArchiveBytes = 256 << 20

// Client issues SingleZip requests. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	rate    *ratecontrol.Controller
}

// NewRateLimiter paces requests to at most requests per interval. OASIS
// rejects callers that exceed its per-minute quota.
func NewRateLimiter(interval time.Duration, requests int) *ratecontrol.Controller {
	return ratecontrol.New(ratecontrol.WithRequestsPerTick(interval, requests))
}

// NewClient returns a client for baseURL. A nil rate controller disables
// request pacing.
func NewClient(c *http.Client, baseURL string, rate *ratecontrol.Controller) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	if rate == nil {
		rate = ratecontrol.New()
	}
	return &Client{http: c, baseURL: baseURL, rate: rate}
}

// FetchArchive performs one GET against the SingleZip endpoint and returns
// the raw archive bytes.
func (c *Client) FetchArchive(ctx context.Context, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	if err := c.rate.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/zip")

	res, err := c.http.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oasis returned HTTP %d for %s", res.StatusCode, params.Get("queryname"))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxArchiveBytes))
	if err != nil {
		return nil, err
	}
	c.rate.BytesTransferred(len(body))

	slog.Debug("downloaded oasis archive", "query", params.Get("queryname"), "bytes", len(body))
	return body, nil
}
