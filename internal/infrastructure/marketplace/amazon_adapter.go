package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

const (
	// maxResponseSize limits the response body size to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024 // 10MB max response
	// listingsPageSize is the page size requested from the listings endpoint
	listingsPageSize = 100
)

// Config holds the channel API settings
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Validate checks the configuration for required fields
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("marketplace: url is required")
	}
	if c.Token == "" {
		return errors.New("marketplace: token is required")
	}
	return nil
}

// AmazonAdapter implements integration.MarketplaceClient against the
// Amazon-style merchant listings API. Throttling responses are surfaced as
// ErrMarketplaceThrottled so the caller's rate limiter can back off.
type AmazonAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewAmazonAdapter creates an adapter for one seller account
func NewAmazonAdapter(config *Config) (*AmazonAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &AmazonAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type listingItem struct {
	Sku         string `json:"sellerSku"`
	Quantity    int    `json:"quantity"`
	Fulfillment string `json:"fulfillmentChannel"`
}

type listingsPage struct {
	Items     []listingItem `json:"items"`
	NextToken string        `json:"nextToken"`
}

// Listings retrieves every active listing, following pagination
func (a *AmazonAdapter) Listings(ctx context.Context, marketplaceID string) ([]integration.Listing, error) {
	var listings []integration.Listing
	nextToken := ""

	for {
		q := url.Values{}
		q.Set("marketplaceId", marketplaceID)
		q.Set("pageSize", fmt.Sprintf("%d", listingsPageSize))
		if nextToken != "" {
			q.Set("nextToken", nextToken)
		}

		body, err := a.doRequest(ctx, "GET", "/listings/items?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var page listingsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("marketplace: failed to parse listings: %w", err)
		}

		for _, item := range page.Items {
			listings = append(listings, integration.Listing{
				Sku:           item.Sku,
				MarketplaceID: marketplaceID,
				Quantity:      item.Quantity,
				Fulfillment:   item.Fulfillment,
			})
		}

		if page.NextToken == "" {
			return listings, nil
		}
		nextToken = page.NextToken
	}
}

type inventoryPatchBody struct {
	MarketplaceID string `json:"marketplaceId"`
	Quantity      int    `json:"quantity"`
}

// PatchInventory publishes one quantity update
func (a *AmazonAdapter) PatchInventory(ctx context.Context, patch integration.InventoryPatch) error {
	path := fmt.Sprintf("/listings/items/%s/inventory", url.PathEscape(patch.Sku))
	_, err := a.doRequest(ctx, "PATCH", path, inventoryPatchBody{
		MarketplaceID: patch.MarketplaceID,
		Quantity:      patch.Quantity,
	})
	return err
}

// doRequest performs one authenticated HTTP round trip
func (a *AmazonAdapter) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marketplace: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.URL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", integration.ErrMarketplaceThrottled)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrMarketplaceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d: %s", integration.ErrMarketplaceRejected, resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
