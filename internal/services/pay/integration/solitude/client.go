// Package solitude reads seller products from the solitude payments API.
package solitude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/louisbranch/webpay/internal/platform/timeouts"
)

// ErrNotFound reports that no active product matches the lookup.
var ErrNotFound = errors.New("product does not exist")

// Product is an active seller product; its secret signs in-app payment JWTs.
type Product struct {
	ResourceURI string `json:"resource_uri"`
	PublicID    string `json:"public_id"`
	ExternalID  string `json:"external_id"`
	SellerURI   string `json:"seller"`
	Secret      string `json:"secret"`
	Active      bool   `json:"active"`
}

type productList struct {
	Objects []Product `json:"objects"`
}

// Client talks to the solitude generic product API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a solitude client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.APIRequest}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// GetActiveProduct returns the single active product with publicID.
func (c *Client) GetActiveProduct(ctx context.Context, publicID string) (*Product, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("solitude client is not configured")
	}
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, fmt.Errorf("get active product: %w", ErrNotFound)
	}

	query := url.Values{}
	query.Set("public_id", publicID)
	query.Set("active", "1")
	endpoint := c.baseURL + "/generic/product/?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get active product: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get active product %s: %w", publicID, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get active product: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var list productList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode product list: %w", err)
	}
	switch len(list.Objects) {
	case 0:
		return nil, fmt.Errorf("get active product %s: %w", publicID, ErrNotFound)
	case 1:
		product := list.Objects[0]
		return &product, nil
	default:
		return nil, fmt.Errorf("get active product %s: multiple products returned", publicID)
	}
}
