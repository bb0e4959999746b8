package smoketest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"
)

// Prober fetches the page served by a test instance.
type Prober interface {
	Probe(ctx context.Context, url string) (string, error)
}

// HTTPProber probes over plain HTTP.
type HTTPProber struct {
	client *resty.Client
}

// NewHTTPProber creates a prober whose requests give up after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: resty.New().SetTimeout(timeout)}
}

// Probe returns the response body of a GET to url. Anything but 200 is an error.
func (p *HTTPProber) Probe(ctx context.Context, url string) (string, error) {
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode())
	}
	return resp.String(), nil
}

// Close releases the underlying HTTP client.
func (p *HTTPProber) Close() error {
	return p.client.Close()
}
