// Package transport performs image GETs for the prefetch worker and the
// primary image loader.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Blob is a fetched response body.
type Blob struct {
	Data        []byte
	ContentType string
	StatusCode  int
}

// Config holds HTTP client settings.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Client fetches image bytes over HTTP.
type Client struct {
	client *resty.Client
}

// NewClient creates a client.
// Parameters:
//   - cfg: client configuration; nil uses a 30s timeout.
// Returns:
//   - *Client: initialized HTTP client wrapper.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{client: client}
}

// Fetch GETs location and returns the body. Non-2xx responses are errors.
func (c *Client) Fetch(ctx context.Context, location string) (*Blob, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: status %d", location, resp.StatusCode())
	}

	return &Blob{
		Data:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		StatusCode:  resp.StatusCode(),
	}, nil
}
