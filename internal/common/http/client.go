// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"
)

// DefaultTimeout bounds outbound calls to the predictive-scoring
// service when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const userAgent = "dca-platform"

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	setDefaults(req)
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	setDefaults(req)
	return c.httpClient.Do(req)
}

func setDefaults(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
}
