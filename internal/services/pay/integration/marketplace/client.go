// Package marketplace reports notice delivery failures back to the marketplace API.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/webpay/internal/platform/timeouts"
)

const (
	defaultMaxTries      = 3
	defaultRetryInterval = 500 * time.Millisecond
	defaultRetryMaxDelay = 5 * time.Second
)

// Failure is the body of a webpay failure report.
type Failure struct {
	Attempts int    `json:"attempts"`
	URL      string `json:"url"`
}

// Client talks to the marketplace webpay API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	maxTries      uint
	retryInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryInterval sets the initial backoff between report attempts.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

// WithMaxTries caps the number of report attempts.
func WithMaxTries(tries uint) Option {
	return func(c *Client) {
		if tries > 0 {
			c.maxTries = tries
		}
	}
}

// NewClient creates a marketplace client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.APIRequest}
	}
	client := &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:    httpClient,
		maxTries:      defaultMaxTries,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// ReportFailure marks the transaction's notice as failed after exhausting
// retries. Transport errors and 5xx responses are retried with backoff.
func (c *Client) ReportFailure(ctx context.Context, transID string, failure Failure) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("marketplace client is not configured")
	}
	transID = strings.TrimSpace(transID)
	if transID == "" {
		return fmt.Errorf("transaction id is required")
	}
	body, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("encode failure report: %w", err)
	}
	endpoint := c.baseURL + "/api/v1/webpay/failure/" + url.PathEscape(transID) + "/"

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxInterval = defaultRetryMaxDelay

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.patch(ctx, endpoint, body)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return fmt.Errorf("report failure for %s: %w", transID, err)
	}
	return nil
}

func (c *Client) patch(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build failure request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}
