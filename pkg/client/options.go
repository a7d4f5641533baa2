package client

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Option configures the Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	headers    map[string]string
}

func defaultOptions() *options {
	return &options{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// WithHTTPClient allows providing a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout sets the default timeout for HTTP requests.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if o.httpClient != nil {
			o.httpClient.Timeout = d
		}
	}
}

// WithHeader adds a custom header to all requests.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// applyHeaders sets the configured headers plus a per-request id.
func (o *options) applyHeaders(req *http.Request) {
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-Id", uuid.New().String())
}
