package ratesource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"service-rates/internal"
)

const (
	maxBodyBytes   = 1 << 20
	DefaultTimeout = 10 * time.Second
)

type Options struct {
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate checks. Only for hosts with
	// broken chains that cannot be fixed; never on by default.
	InsecureSkipVerify bool
	Logger             *log.Logger
}

// Client performs a single GET per Fetch and returns the raw body.
type Client struct {
	httpClient *http.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		logger.Printf("rate source: TLS certificate verification is DISABLED")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}
}

// NewWithHTTPClient wraps an existing client, e.g. httptest.Server.Client().
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == internal.BlankURL {
		return nil, &internal.FetchError{Kind: internal.FetchNetwork, URL: rawURL, Err: errors.New("blank url")}
	}
	if err := internal.ValidateURL(rawURL); err != nil {
		return nil, &internal.FetchError{Kind: internal.FetchNetwork, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &internal.FetchError{Kind: internal.FetchNetwork, URL: rawURL, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, rawURL, fmt.Errorf("do request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &internal.FetchError{Kind: internal.FetchNonSuccessStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, rawURL, fmt.Errorf("read response body: %w", err))
	}
	return body, nil
}

func classify(ctx context.Context, rawURL string, err error) error {
	kind := internal.FetchNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = internal.FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = internal.FetchTimeout
	}
	return &internal.FetchError{Kind: kind, URL: rawURL, Err: err}
}
