package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootview/wallet-portfolio/internal/domain"
)

var (
	acquiredAt = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	viewerWallet = "0x1111111111111111111111111111111111111111"
	ownerWallet  = "0x2222222222222222222222222222222222222222"
	otherWallet  = "0x3333333333333333333333333333333333333333"

	testTokenKey = domain.NewTokenKey(domain.ChainEthereumMainnet, "0xABCDEF0123456789abcdef0123456789ABCDEF01", "42")
)

func purchase(id string, buyer string, at time.Time, txHash string) domain.PurchaseRecord {
	return domain.PurchaseRecord{
		PurchaseID:        id,
		TokenKey:          testTokenKey,
		BuyerAddress:      buyer,
		PriceGameCurrency: decimal.NewFromInt(100),
		PurchasedAt:       at,
		TxHash:            txHash,
	}
}

func TestMatch_ExactTxWins(t *testing.T) {
	acquisition := &domain.AcquisitionRecord{
		AcquiredAt: acquiredAt,
		TxHash:     "0xAAA111",
		Kind:       domain.AcquisitionKindTransfer,
	}

	// The closer-in-time candidate must lose to the exact transaction match
	candidates := []domain.PurchaseRecord{
		purchase("p-close", viewerWallet, acquiredAt.Add(time.Second), "0xother"),
		purchase("p-exact", otherWallet, acquiredAt.Add(9*time.Minute), "0xaaa111"),
	}

	result := Match(acquisition, candidates, viewerWallet, ownerWallet)
	require.NotNil(t, result.Purchase)
	assert.Equal(t, domain.MatchMethodExactTx, result.Method)
	assert.Equal(t, "p-exact", result.Purchase.PurchaseID)
}

func TestMatch_TimeWindow(t *testing.T) {
	acquisition := &domain.AcquisitionRecord{
		AcquiredAt: acquiredAt,
		TxHash:     "0xnotinledger",
	}

	testCases := []struct {
		name       string
		candidates []domain.PurchaseRecord
		expectedID string
		method     domain.MatchMethod
	}{
		{
			name: "identity match beats closer stranger",
			candidates: []domain.PurchaseRecord{
				purchase("p-stranger", otherWallet, acquiredAt.Add(30*time.Second), ""),
				purchase("p-viewer", viewerWallet, acquiredAt.Add(5*time.Minute), ""),
			},
			expectedID: "p-viewer",
			method:     domain.MatchMethodTimeWindow,
		},
		{
			name: "owner identity counts too",
			candidates: []domain.PurchaseRecord{
				purchase("p-stranger", otherWallet, acquiredAt.Add(time.Minute), ""),
				purchase("p-owner", ownerWallet, acquiredAt.Add(8*time.Minute), ""),
			},
			expectedID: "p-owner",
			method:     domain.MatchMethodTimeWindow,
		},
		{
			name: "closest wins among equals",
			candidates: []domain.PurchaseRecord{
				purchase("p-far", otherWallet, acquiredAt.Add(9*time.Minute), ""),
				purchase("p-near", otherWallet, acquiredAt.Add(-2*time.Minute), ""),
			},
			expectedID: "p-near",
			method:     domain.MatchMethodTimeWindow,
		},
		{
			name: "purchase id breaks full ties",
			candidates: []domain.PurchaseRecord{
				purchase("p-b", otherWallet, acquiredAt.Add(time.Minute), ""),
				purchase("p-a", otherWallet, acquiredAt.Add(-time.Minute), ""),
			},
			expectedID: "p-a",
			method:     domain.MatchMethodTimeWindow,
		},
		{
			name: "everything outside window",
			candidates: []domain.PurchaseRecord{
				purchase("p-late", viewerWallet, acquiredAt.Add(11*time.Minute), ""),
				purchase("p-early", viewerWallet, acquiredAt.Add(-11*time.Minute), ""),
			},
			method: domain.MatchMethodNone,
		},
		{
			name:       "no candidates",
			candidates: nil,
			method:     domain.MatchMethodNone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Match(acquisition, tc.candidates, viewerWallet, ownerWallet)
			assert.Equal(t, tc.method, result.Method)
			if tc.expectedID == "" {
				assert.Nil(t, result.Purchase)
			} else {
				require.NotNil(t, result.Purchase)
				assert.Equal(t, tc.expectedID, result.Purchase.PurchaseID)
			}
		})
	}
}

func TestMatch_WindowBoundaryInclusive(t *testing.T) {
	acquisition := &domain.AcquisitionRecord{AcquiredAt: acquiredAt}

	boundary := purchase("p-boundary", otherWallet, acquiredAt.Add(10*time.Minute), "")
	result := Match(acquisition, []domain.PurchaseRecord{boundary}, viewerWallet, "")
	require.NotNil(t, result.Purchase)
	assert.Equal(t, domain.MatchMethodTimeWindow, result.Method)
}

func TestMatch_DeterministicUnderReordering(t *testing.T) {
	acquisition := &domain.AcquisitionRecord{AcquiredAt: acquiredAt}

	candidates := []domain.PurchaseRecord{
		purchase("p-c", otherWallet, acquiredAt.Add(time.Minute), ""),
		purchase("p-a", otherWallet, acquiredAt.Add(time.Minute), ""),
		purchase("p-b", otherWallet, acquiredAt.Add(time.Minute), ""),
	}

	first := Match(acquisition, candidates, viewerWallet, "")
	require.NotNil(t, first.Purchase)

	reversed := []domain.PurchaseRecord{candidates[2], candidates[0], candidates[1]}
	second := Match(acquisition, reversed, viewerWallet, "")
	require.NotNil(t, second.Purchase)

	assert.Equal(t, first.Purchase.PurchaseID, second.Purchase.PurchaseID)
	assert.Equal(t, "p-a", first.Purchase.PurchaseID)
}

func TestMatch_NilAcquisition(t *testing.T) {
	result := Match(nil, []domain.PurchaseRecord{purchase("p-1", viewerWallet, acquiredAt, "")}, viewerWallet, "")
	assert.Equal(t, domain.MatchMethodNone, result.Method)
	assert.Nil(t, result.Purchase)
}

func TestMatch_ExactTxCaseInsensitive(t *testing.T) {
	acquisition := &domain.AcquisitionRecord{
		AcquiredAt: acquiredAt,
		TxHash:     "0xAbCd12",
	}
	candidates := []domain.PurchaseRecord{
		purchase("p-1", otherWallet, acquiredAt.Add(time.Hour), "0xABCD12"),
	}

	result := Match(acquisition, candidates, viewerWallet, "")
	assert.Equal(t, domain.MatchMethodExactTx, result.Method)
}
