package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/ratelimit"
)

const PROVIDER_NAME = "pricefeed"

// Client defines the interface for the historical price oracle, used to
// convert in-game-currency purchase prices to a display currency at the time
// of purchase
//
//go:generate mockgen -source=client.go -destination=../../../mocks/pricefeed_client.go -package=mocks -mock_names=Client=MockPriceFeedClient
type Client interface {
	// GetHistoricalPrice returns the game-currency price in the configured
	// display currency as of the given time, or nil when the feed is
	// unconfigured or has no data point
	GetHistoricalPrice(ctx context.Context, asOf time.Time) (*decimal.Decimal, error)
}

// priceResponse is the wire shape of the price feed endpoint
type priceResponse struct {
	Price  *string  `json:"price"`
	Errors []string `json:"errors,omitempty"`
}

// PriceFeedClient implements the price oracle client
type PriceFeedClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	cfg            config.PriceFeedConfig
	json           adapter.JSON
}

// NewClient creates a new price feed client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, cfg config.PriceFeedConfig, json adapter.JSON) Client {
	return &PriceFeedClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		cfg:            cfg,
		json:           json,
	}
}

// GetHistoricalPrice returns the game-currency price in the configured
// display currency as of the given time
func (c *PriceFeedClient) GetHistoricalPrice(ctx context.Context, asOf time.Time) (*decimal.Decimal, error) {
	if c.cfg.URL == "" {
		return nil, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/history?currency=%s&at=%d", c.cfg.URL, c.cfg.Currency, asOf.Unix())

	respBody, err := ratelimit.Request(timeoutCtx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, url, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call price feed API: %w", err)
	}

	var response priceResponse
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price feed response: %w", err)
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("price feed API errors: %v", response.Errors)
	}

	if response.Price == nil {
		return nil, nil
	}

	price, err := decimal.NewFromString(*response.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price %q: %w", *response.Price, err)
	}

	return &price, nil
}
