package reconcile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/providers/ethereum"
)

// Resolver derives the on-chain acquisition record for a (wallet, token) pair
//
//go:generate mockgen -source=resolver.go -destination=../mocks/resolver.go -package=mocks -mock_names=Resolver=MockResolver
type Resolver interface {
	// ResolveAcquisition returns the wallet's original acquisition of the
	// token: the first chronological transfer to the wallet, classified as
	// mint or transfer. Returns domain.ErrNoAcquisition when the wallet never
	// received the token on-chain.
	ResolveAcquisition(ctx context.Context, contractAddress, tokenNumber, walletAddress string) (*domain.AcquisitionRecord, error)
}

type resolver struct {
	chain ethereum.Client
}

// NewResolver creates a new transfer-history resolver
func NewResolver(chain ethereum.Client) Resolver {
	return &resolver{chain: chain}
}

// ResolveAcquisition returns the wallet's original acquisition of the token.
//
// If the wallet transferred the token out and later reacquired it, the very
// first incoming transfer is still used as the acquisition. Known limitation,
// kept deliberately.
func (r *resolver) ResolveAcquisition(ctx context.Context, contractAddress, tokenNumber, walletAddress string) (*domain.AcquisitionRecord, error) {
	if !common.IsHexAddress(walletAddress) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAddress, walletAddress)
	}

	history, err := r.chain.GetTokenTransferEvents(ctx, contractAddress, tokenNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfer events: %w", err)
	}

	// Events arrive ordered by (block, log index); the first incoming
	// transfer is the acquisition
	for _, event := range history.Events {
		if !domain.SameAddress(event.To, walletAddress) {
			continue
		}

		kind := domain.AcquisitionKindTransfer
		if domain.IsZeroAddress(event.From) {
			kind = domain.AcquisitionKindMint
		}

		return &domain.AcquisitionRecord{
			AcquiredAt:  event.Timestamp,
			FromAddress: event.From,
			TxHash:      event.TxHash,
			Kind:        kind,
			Gaps:        history.Gaps,
		}, nil
	}

	return nil, domain.ErrNoAcquisition
}
