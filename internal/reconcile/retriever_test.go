package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/domain"
)

func marketplaceConfig() config.MarketplaceConfig {
	return config.MarketplaceConfig{
		WalletWindow: time.Hour,
		WalletLimit:  100,
		Timeout:      5 * time.Second,
	}
}

func TestDedupe(t *testing.T) {
	base := purchase("p-1", viewerWallet, acquiredAt, "0xaaa")

	testCases := []struct {
		name     string
		records  []domain.PurchaseRecord
		expected []string
	}{
		{
			name:     "empty input",
			records:  nil,
			expected: []string{},
		},
		{
			name:     "distinct records survive",
			records:  []domain.PurchaseRecord{purchase("p-1", viewerWallet, acquiredAt, "0xaaa"), purchase("p-2", viewerWallet, acquiredAt.Add(time.Hour), "0xbbb")},
			expected: []string{"p-1", "p-2"},
		},
		{
			name:     "same purchase id collapses",
			records:  []domain.PurchaseRecord{base, purchase("p-1", otherWallet, acquiredAt.Add(time.Hour), "0xccc")},
			expected: []string{"p-1"},
		},
		{
			name:     "same tx hash collapses despite different ids",
			records:  []domain.PurchaseRecord{base, purchase("p-2", viewerWallet, acquiredAt.Add(time.Hour), "0xAAA")},
			expected: []string{"p-1"},
		},
		{
			name: "same order id collapses",
			records: []domain.PurchaseRecord{
				{PurchaseID: "p-1", TokenKey: testTokenKey, OrderID: "ord-9", PriceGameCurrency: decimal.NewFromInt(5), PurchasedAt: acquiredAt},
				{PurchaseID: "p-2", TokenKey: testTokenKey, OrderID: "ord-9", PriceGameCurrency: decimal.NewFromInt(7), PurchasedAt: acquiredAt.Add(time.Hour)},
			},
			expected: []string{"p-1"},
		},
		{
			name: "composite key collapses records with no shared ids",
			records: []domain.PurchaseRecord{
				{TokenKey: testTokenKey, PriceGameCurrency: decimal.NewFromInt(100), PurchasedAt: acquiredAt.Add(100 * time.Millisecond)},
				{TokenKey: testTokenKey, PriceGameCurrency: decimal.NewFromInt(100), PurchasedAt: acquiredAt.Add(900 * time.Millisecond)},
			},
			expected: []string{""},
		},
		{
			name: "chained duplicates collapse onto first",
			records: []domain.PurchaseRecord{
				{PurchaseID: "p-1", TokenKey: testTokenKey, TxHash: "0xshared", PriceGameCurrency: decimal.NewFromInt(1), PurchasedAt: acquiredAt},
				{PurchaseID: "p-2", TokenKey: testTokenKey, TxHash: "0xshared", OrderID: "ord-1", PriceGameCurrency: decimal.NewFromInt(2), PurchasedAt: acquiredAt.Add(time.Hour)},
				{PurchaseID: "p-3", TokenKey: testTokenKey, OrderID: "ord-1", PriceGameCurrency: decimal.NewFromInt(3), PurchasedAt: acquiredAt.Add(2 * time.Hour)},
			},
			expected: []string{"p-1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Dedupe(tc.records)
			ids := make([]string, 0, len(result))
			for _, r := range result {
				ids = append(ids, r.PurchaseID)
			}
			assert.Equal(t, tc.expected, ids)
		})
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	records := []domain.PurchaseRecord{
		purchase("p-1", viewerWallet, acquiredAt, "0xaaa"),
		purchase("p-1", viewerWallet, acquiredAt, "0xaaa"),
		purchase("p-2", otherWallet, acquiredAt.Add(time.Hour), "0xbbb"),
	}

	once := Dedupe(records)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestRetrieveCandidates_MergesAndFilters(t *testing.T) {
	wrongToken := purchase("p-wrong", viewerWallet, acquiredAt, "0xddd")
	wrongToken.TokenKey = domain.NewTokenKey(domain.ChainEthereumMainnet, "0x9999999999999999999999999999999999999999", "7")

	market := &fakeMarket{
		byToken: []domain.PurchaseRecord{purchase("p-token", otherWallet, acquiredAt, "0xaaa")},
		byWallet: map[string][]domain.PurchaseRecord{
			viewerWallet: {purchase("p-viewer", viewerWallet, acquiredAt.Add(time.Minute), "0xbbb"), wrongToken},
			ownerWallet:  {purchase("p-owner", ownerWallet, acquiredAt.Add(2*time.Minute), "0xccc")},
		},
	}

	candidates := NewRetriever(market, marketplaceConfig()).
		RetrieveCandidates(context.Background(), testTokenKey, viewerWallet, ownerWallet, acquiredAt)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.PurchaseID)
	}
	// Purchases for other tokens are dropped, all three sources contribute
	assert.ElementsMatch(t, []string{"p-token", "p-viewer", "p-owner"}, ids)
	assert.Equal(t, 1, market.byTokenCalls)
	assert.ElementsMatch(t, []string{viewerWallet, ownerWallet}, market.byWalletCalls)
}

func TestRetrieveCandidates_SkipsOwnerLookupWhenSameWallet(t *testing.T) {
	market := &fakeMarket{
		byWallet: map[string][]domain.PurchaseRecord{},
	}

	NewRetriever(market, marketplaceConfig()).
		RetrieveCandidates(context.Background(), testTokenKey, viewerWallet, viewerWallet, acquiredAt)

	assert.Equal(t, []string{viewerWallet}, market.byWalletCalls)
}

func TestRetrieveCandidates_DeduplicatesAcrossSources(t *testing.T) {
	// The same sale appears in both the token and wallet lookups
	sale := purchase("p-1", viewerWallet, acquiredAt, "0xaaa")
	market := &fakeMarket{
		byToken: []domain.PurchaseRecord{sale},
		byWallet: map[string][]domain.PurchaseRecord{
			viewerWallet: {sale},
		},
	}

	candidates := NewRetriever(market, marketplaceConfig()).
		RetrieveCandidates(context.Background(), testTokenKey, viewerWallet, "", acquiredAt)

	require.Len(t, candidates, 1)
	assert.Equal(t, "p-1", candidates[0].PurchaseID)
}

func TestRetrieveCandidates_DegradesOnFailure(t *testing.T) {
	market := &fakeMarket{
		byTokenErr:  errors.New("ledger down"),
		byWalletErr: errors.New("ledger down"),
	}

	candidates := NewRetriever(market, marketplaceConfig()).
		RetrieveCandidates(context.Background(), testTokenKey, viewerWallet, ownerWallet, acquiredAt)

	assert.Empty(t, candidates)
}
