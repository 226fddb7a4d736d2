package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{URL: "https://api.example.com", Token: "tok"}).Validate())
	assert.Error(t, (&Config{Token: "tok"}).Validate())
	assert.Error(t, (&Config{URL: "https://api.example.com"}).Validate())
}

func newTestAdapter(t *testing.T, srv *httptest.Server) *AmazonAdapter {
	t.Helper()
	adapter, err := NewAmazonAdapter(&Config{URL: srv.URL, Token: "test-token"})
	require.NoError(t, err)
	return adapter
}

func TestListings_FollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "A1PA6795UKMFR9", r.URL.Query().Get("marketplaceId"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("nextToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"sellerSku": "1006", "quantity": 40, "fulfillmentChannel": "DEFAULT"},
				},
				"nextToken": "page-2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"sellerSku": "18011-FBM", "quantity": 3, "fulfillmentChannel": "MERCHANT"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	adapter := newTestAdapter(t, srv)
	listings, err := adapter.Listings(context.Background(), "A1PA6795UKMFR9")

	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "1006", listings[0].Sku)
	assert.Equal(t, 40, listings[0].Quantity)
	assert.Equal(t, "18011-FBM", listings[1].Sku)
	assert.Equal(t, "A1PA6795UKMFR9", listings[1].MarketplaceID)
}

func TestPatchInventory(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "PATCH", r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	adapter := newTestAdapter(t, srv)
	err := adapter.PatchInventory(context.Background(), integration.InventoryPatch{
		Sku:           "1006",
		MarketplaceID: "A1PA6795UKMFR9",
		Quantity:      65,
	})

	require.NoError(t, err)
	assert.Equal(t, "/listings/items/1006/inventory", gotPath)
	assert.Equal(t, float64(65), gotBody["quantity"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"throttled", http.StatusTooManyRequests, integration.ErrMarketplaceThrottled},
		{"rejected", http.StatusBadRequest, integration.ErrMarketplaceRejected},
		{"server error", http.StatusBadGateway, integration.ErrMarketplaceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			adapter := newTestAdapter(t, srv)
			err := adapter.PatchInventory(context.Background(), integration.InventoryPatch{Sku: "1006"})

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListings_Unreachable(t *testing.T) {
	adapter, err := NewAmazonAdapter(&Config{URL: "http://127.0.0.1:1", Token: "tok"})
	require.NoError(t, err)

	_, err = adapter.Listings(context.Background(), "A1PA6795UKMFR9")
	assert.ErrorIs(t, err, integration.ErrMarketplaceUnavailable)
}
