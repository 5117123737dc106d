package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/ratelimit"
)

const PROVIDER_NAME = "listings"

// ErrRecentlyFailed is returned when a token's listing lookup is skipped
// because a recent lookup for the same token failed
var ErrRecentlyFailed = errors.New("listing lookup recently failed, skipping")

// Client defines the interface for the NFT listings provider
//
//go:generate mockgen -source=client.go -destination=../../../mocks/listings_client.go -package=mocks -mock_names=Client=MockListingsClient
type Client interface {
	// GetListings fetches the current listing bounds (low/high) for a token.
	// Best-effort: failures are remembered in the injected failure cache so
	// repeated lookups for a dead token short-circuit until the entry expires.
	GetListings(ctx context.Context, contractAddress, tokenNumber string) (*domain.ListingSnapshot, error)
}

// listingEntry is a single active listing on the wire
type listingEntry struct {
	Price string `json:"price"`
}

// listingsResponse is the wire shape of the listings endpoint
type listingsResponse struct {
	Listings []listingEntry `json:"listings"`
	Errors   []string       `json:"errors,omitempty"`
}

// ListingsClient implements the listings provider
type ListingsClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	cfg            config.ListingsConfig
	failures       *FailureCache
	clock          adapter.Clock
	json           adapter.JSON
}

// NewClient creates a new listings client. The failure cache is injected so
// its lifetime is scoped to the application, not to this package.
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, cfg config.ListingsConfig, failures *FailureCache, clock adapter.Clock, json adapter.JSON) Client {
	return &ListingsClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		cfg:            cfg,
		failures:       failures,
		clock:          clock,
		json:           json,
	}
}

// GetListings fetches the current listing bounds (low/high) for a token
func (c *ListingsClient) GetListings(ctx context.Context, contractAddress, tokenNumber string) (*domain.ListingSnapshot, error) {
	contract := strings.ToLower(contractAddress)
	cacheKey := contract + ":" + tokenNumber

	if c.failures.RecentlyFailed(cacheKey) {
		return nil, ErrRecentlyFailed
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/listings/%s/%s", c.cfg.URL, contract, tokenNumber)
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["X-API-KEY"] = c.cfg.APIKey
	}

	respBody, err := ratelimit.Request(timeoutCtx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, url, headers)
	})
	if err != nil {
		c.failures.RecordFailure(cacheKey)
		return nil, fmt.Errorf("failed to call listings API: %w", err)
	}

	var response listingsResponse
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		c.failures.RecordFailure(cacheKey)
		return nil, fmt.Errorf("failed to unmarshal listings response: %w", err)
	}

	if len(response.Errors) > 0 {
		c.failures.RecordFailure(cacheKey)
		return nil, fmt.Errorf("listings API errors: %v", response.Errors)
	}

	snapshot := &domain.ListingSnapshot{ObservedAt: c.clock.Now().UTC()}
	for _, entry := range response.Listings {
		price, err := decimal.NewFromString(entry.Price)
		if err != nil || price.IsNegative() {
			continue
		}
		p := price
		if snapshot.Low == nil || p.LessThan(*snapshot.Low) {
			snapshot.Low = &p
		}
		if snapshot.High == nil || p.GreaterThan(*snapshot.High) {
			snapshot.High = &p
		}
	}

	return snapshot, nil
}
