package gamemarket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/ratelimit"
)

const PROVIDER_NAME = "gamemarket"

// Client defines the interface for the in-game marketplace sales ledger.
// The backend is a best-effort enrichment: when unconfigured or unreachable,
// both lookups return empty sets without erroring.
//
//go:generate mockgen -source=client.go -destination=../../../mocks/gamemarket_client.go -package=mocks -mock_names=Client=MockGameMarketClient
type Client interface {
	// GetPurchasesByToken fetches all purchases ever recorded for a token key
	GetPurchasesByToken(ctx context.Context, tokenKey domain.TokenKey) ([]domain.PurchaseRecord, error)

	// GetPurchasesByWallet fetches purchases made by a wallet within a time range
	GetPurchasesByWallet(ctx context.Context, wallet string, from, to time.Time, limit int) ([]domain.PurchaseRecord, error)
}

// GameMarketClient implements the marketplace sales-ledger client
type GameMarketClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	cfg            config.MarketplaceConfig
	json           adapter.JSON
}

// NewClient creates a new marketplace sales-ledger client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, cfg config.MarketplaceConfig, json adapter.JSON) Client {
	return &GameMarketClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		cfg:            cfg,
		json:           json,
	}
}

// salesResponse is the wire shape of the marketplace sales endpoints
type salesResponse struct {
	Sales  []rawPurchase `json:"sales"`
	Errors []string      `json:"errors,omitempty"`
}

// GetPurchasesByToken fetches all purchases ever recorded for a token key
func (c *GameMarketClient) GetPurchasesByToken(ctx context.Context, tokenKey domain.TokenKey) ([]domain.PurchaseRecord, error) {
	if c.cfg.URL == "" {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/v1/sales?token=%s", c.cfg.URL, url.QueryEscape(tokenKey.String()))
	return c.fetch(ctx, reqURL)
}

// GetPurchasesByWallet fetches purchases made by a wallet within a time range
func (c *GameMarketClient) GetPurchasesByWallet(ctx context.Context, wallet string, from, to time.Time, limit int) ([]domain.PurchaseRecord, error) {
	if c.cfg.URL == "" {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/v1/sales?buyer=%s&from=%d&to=%d&limit=%d",
		c.cfg.URL,
		url.QueryEscape(domain.NormalizeAddress(wallet)),
		from.Unix(),
		to.Unix(),
		limit,
	)
	return c.fetch(ctx, reqURL)
}

func (c *GameMarketClient) fetch(ctx context.Context, reqURL string) ([]domain.PurchaseRecord, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["X-API-KEY"] = c.cfg.APIKey
	}

	respBody, err := ratelimit.Request(timeoutCtx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, reqURL, headers)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call marketplace API: %w", err)
	}

	var response salesResponse
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal marketplace response: %w", err)
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("marketplace API errors: %v", response.Errors)
	}

	records := make([]domain.PurchaseRecord, 0, len(response.Sales))
	for _, raw := range response.Sales {
		if record, ok := raw.Normalize(); ok {
			records = append(records, *record)
		}
	}

	return records, nil
}
