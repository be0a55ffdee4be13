// Package httpclient builds the HTTP client handed to fetchers. All network
// settings travel in Config; nothing is read from process-wide state.
package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type Config struct {
	// ProxyURL routes both http and https traffic. Empty means direct.
	ProxyURL  string
	Timeout   time.Duration
	UserAgent string
}

func New(cfg Config) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("parse proxy url: %q is not absolute", cfg.ProxyURL)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &userAgent{next: transport, value: cfg.UserAgent}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
	}, nil
}

type userAgent struct {
	next  http.RoundTripper
	value string
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", u.value)
	}
	return u.next.RoundTrip(req)
}
