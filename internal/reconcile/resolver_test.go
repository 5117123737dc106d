package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/providers/ethereum"
)

func transferEvent(from, to string, block uint64, logIndex uint, txHash string, at time.Time) domain.TransferEvent {
	return domain.TransferEvent{
		From:        from,
		To:          to,
		TokenNumber: "42",
		BlockNumber: block,
		LogIndex:    logIndex,
		TxHash:      txHash,
		Timestamp:   at,
	}
}

func TestResolveAcquisition_Mint(t *testing.T) {
	mintedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	chain := &fakeChain{
		history: &ethereum.TransferHistory{
			Events: []domain.TransferEvent{
				transferEvent(domain.ETHEREUM_ZERO_ADDRESS, viewerWallet, 100, 0, "0xmint", mintedAt),
				transferEvent(viewerWallet, otherWallet, 200, 1, "0xsale", mintedAt.Add(time.Hour)),
			},
		},
	}

	record, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", viewerWallet)
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionKindMint, record.Kind)
	assert.Equal(t, "0xmint", record.TxHash)
	assert.Equal(t, mintedAt, record.AcquiredAt)
	assert.Equal(t, domain.ETHEREUM_ZERO_ADDRESS, record.FromAddress)
}

func TestResolveAcquisition_Transfer(t *testing.T) {
	boughtAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	chain := &fakeChain{
		history: &ethereum.TransferHistory{
			Events: []domain.TransferEvent{
				transferEvent(domain.ETHEREUM_ZERO_ADDRESS, otherWallet, 100, 0, "0xmint", boughtAt.Add(-time.Hour)),
				transferEvent(otherWallet, viewerWallet, 150, 3, "0xbuy", boughtAt),
			},
		},
	}

	record, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", viewerWallet)
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionKindTransfer, record.Kind)
	assert.Equal(t, "0xbuy", record.TxHash)
	assert.Equal(t, otherWallet, record.FromAddress)
}

func TestResolveAcquisition_FirstIncomingWinsOnReacquisition(t *testing.T) {
	// Token left the wallet and came back; the original acquisition stands
	firstAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := &fakeChain{
		history: &ethereum.TransferHistory{
			Events: []domain.TransferEvent{
				transferEvent(domain.ETHEREUM_ZERO_ADDRESS, viewerWallet, 100, 0, "0xfirst", firstAt),
				transferEvent(viewerWallet, otherWallet, 200, 0, "0xout", firstAt.Add(24*time.Hour)),
				transferEvent(otherWallet, viewerWallet, 300, 0, "0xback", firstAt.Add(48*time.Hour)),
			},
		},
	}

	record, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", viewerWallet)
	require.NoError(t, err)
	assert.Equal(t, "0xfirst", record.TxHash)
	assert.Equal(t, domain.AcquisitionKindMint, record.Kind)
}

func TestResolveAcquisition_CaseInsensitiveWallet(t *testing.T) {
	mintedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := &fakeChain{
		history: &ethereum.TransferHistory{
			Events: []domain.TransferEvent{
				transferEvent(domain.ETHEREUM_ZERO_ADDRESS, "0x1111111111111111111111111111111111111111", 100, 0, "0xmint", mintedAt),
			},
		},
	}

	record, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionKindMint, record.Kind)
}

func TestResolveAcquisition_NoAcquisition(t *testing.T) {
	chain := &fakeChain{
		history: &ethereum.TransferHistory{
			Events: []domain.TransferEvent{
				transferEvent(domain.ETHEREUM_ZERO_ADDRESS, otherWallet, 100, 0, "0xmint", time.Now()),
			},
		},
	}

	_, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", viewerWallet)
	assert.ErrorIs(t, err, domain.ErrNoAcquisition)
}

func TestResolveAcquisition_InvalidAddress(t *testing.T) {
	chain := &fakeChain{history: &ethereum.TransferHistory{}}

	_, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", "not-an-address")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestResolveAcquisition_ChainError(t *testing.T) {
	chain := &fakeChain{historyErr: errors.New("rpc unavailable")}

	_, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", viewerWallet)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoAcquisition)
}

func TestResolveAcquisition_CarriesGaps(t *testing.T) {
	chain := &fakeChain{
		history: &ethereum.TransferHistory{
			Events: []domain.TransferEvent{
				transferEvent(domain.ETHEREUM_ZERO_ADDRESS, viewerWallet, 100, 0, "0xmint", time.Now()),
			},
			Gaps: []domain.BlockRange{{From: 500, To: 600}},
		},
	}

	record, err := NewResolver(chain).ResolveAcquisition(context.Background(), "0xabc0000000000000000000000000000000000abc", "42", viewerWallet)
	require.NoError(t, err)
	require.Len(t, record.Gaps, 1)
	assert.Equal(t, uint64(500), record.Gaps[0].From)
}
