// Package catalog talks to the external product catalog. The list service
// only ever sees the Client interface; the proxy itself is not ours.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrUpstreamUnavailable = errors.New("catalog upstream unavailable")
	ErrProductNotFound     = errors.New("product not found")
)

// Product is the upstream product at the moment of lookup. Callers snapshot
// these fields into list items; they are never refreshed afterwards.
type Product struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Thumbnail        string  `json:"thumbnail"`
	Price            float64 `json:"price"`
	UnitSize         float64 `json:"unit_size"`
	UnitFormat       string  `json:"unit_format"`
	UnitPricePerUnit float64 `json:"unit_price_per_unit"`
	IsApproxSize     bool    `json:"is_approx_size"`
}

type Client interface {
	Product(ctx context.Context, productID string) (Product, error)
}

type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPClient) Product(ctx context.Context, productID string) (Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/products/"+productID, nil)
	if err != nil {
		return Product{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, ErrProductNotFound
	case resp.StatusCode != http.StatusOK:
		return Product{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return product, nil
}

// StaticClient serves a fixed product set; used by tests and local setups
// without the catalog proxy.
type StaticClient struct {
	Products map[string]Product
}

func (c *StaticClient) Product(_ context.Context, productID string) (Product, error) {
	product, ok := c.Products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}
