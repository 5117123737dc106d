package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/logger"
	"github.com/lootview/wallet-portfolio/internal/providers/vendors/gamemarket"
)

// Retriever gathers candidate purchase records for a token from the
// marketplace sales ledger
//
//go:generate mockgen -source=retriever.go -destination=../mocks/retriever.go -package=mocks -mock_names=Retriever=MockRetriever
type Retriever interface {
	// RetrieveCandidates issues the by-token and by-wallet lookups, filters
	// by-wallet results to the token key, merges and deduplicates. Marketplace
	// failures degrade to an empty candidate set; this is enrichment, never a
	// blocking dependency.
	RetrieveCandidates(ctx context.Context, tokenKey domain.TokenKey, viewerWallet, currentOwner string, acquiredAt time.Time) []domain.PurchaseRecord
}

type retriever struct {
	market gamemarket.Client
	cfg    config.MarketplaceConfig
}

// NewRetriever creates a new marketplace purchase retriever
func NewRetriever(market gamemarket.Client, cfg config.MarketplaceConfig) Retriever {
	return &retriever{market: market, cfg: cfg}
}

// RetrieveCandidates issues the lookups, merges and deduplicates
func (r *retriever) RetrieveCandidates(ctx context.Context, tokenKey domain.TokenKey, viewerWallet, currentOwner string, acquiredAt time.Time) []domain.PurchaseRecord {
	from := acquiredAt.Add(-r.cfg.WalletWindow)
	to := acquiredAt.Add(r.cfg.WalletWindow)

	type lookupResult struct {
		records []domain.PurchaseRecord
		source  string
		err     error
	}

	lookups := []struct {
		source string
		run    func(ctx context.Context) ([]domain.PurchaseRecord, error)
	}{
		{
			source: "by_token",
			run: func(ctx context.Context) ([]domain.PurchaseRecord, error) {
				return r.market.GetPurchasesByToken(ctx, tokenKey)
			},
		},
		{
			source: "by_viewer_wallet",
			run: func(ctx context.Context) ([]domain.PurchaseRecord, error) {
				return r.market.GetPurchasesByWallet(ctx, viewerWallet, from, to, r.cfg.WalletLimit)
			},
		},
	}

	// The wallet viewing the portfolio may differ from the wallet that
	// transacted (custodial in-game wallet pattern), so the current on-chain
	// owner gets its own lookup when it is a different address
	if currentOwner != "" && !domain.SameAddress(currentOwner, viewerWallet) {
		owner := currentOwner
		lookups = append(lookups, struct {
			source string
			run    func(ctx context.Context) ([]domain.PurchaseRecord, error)
		}{
			source: "by_owner_wallet",
			run: func(ctx context.Context) ([]domain.PurchaseRecord, error) {
				return r.market.GetPurchasesByWallet(ctx, owner, from, to, r.cfg.WalletLimit)
			},
		})
	}

	resultsCh := make(chan lookupResult, len(lookups))
	for _, lookup := range lookups {
		go func(source string, run func(ctx context.Context) ([]domain.PurchaseRecord, error)) {
			records, err := run(ctx)
			resultsCh <- lookupResult{records: records, source: source, err: err}
		}(lookup.source, lookup.run)
	}

	resultsBySource := make(map[string][]domain.PurchaseRecord, len(lookups))
	for range lookups {
		result := <-resultsCh
		if result.err != nil {
			logger.WarnCtx(ctx, "marketplace lookup failed, continuing without it",
				zap.String("source", result.source),
				zap.String("token_key", tokenKey.String()),
				zap.Error(result.err))
			continue
		}
		resultsBySource[result.source] = result.records
	}

	// Merge in a fixed source order so deduplication is deterministic
	var merged []domain.PurchaseRecord
	merged = append(merged, resultsBySource["by_token"]...)
	for _, source := range []string{"by_viewer_wallet", "by_owner_wallet"} {
		for _, record := range resultsBySource[source] {
			// By-wallet lookups return every purchase the wallet made in the
			// window; keep only this token's
			if strings.EqualFold(record.TokenKey.String(), tokenKey.String()) {
				merged = append(merged, record)
			}
		}
	}

	return Dedupe(merged)
}

// Dedupe removes duplicate purchase records. Two records are the same
// purchase if they share a purchase ID, transaction hash, order ID, or the
// composite (tokenKey, second-truncated timestamp, price). Any shared key
// collapses the pair; the first occurrence wins. Running Dedupe on an already
// deduplicated set is a no-op.
func Dedupe(records []domain.PurchaseRecord) []domain.PurchaseRecord {
	seen := make(map[string]bool)
	result := make([]domain.PurchaseRecord, 0, len(records))

	for _, record := range records {
		keys := identityKeys(record)

		duplicate := false
		for _, key := range keys {
			if seen[key] {
				duplicate = true
				break
			}
		}

		// Register all keys either way so chained duplicates (A~B on txId,
		// B~C on orderId) collapse onto the first record
		for _, key := range keys {
			seen[key] = true
		}

		if !duplicate {
			result = append(result, record)
		}
	}

	return result
}

// identityKeys returns every key under which a purchase can be recognized
func identityKeys(record domain.PurchaseRecord) []string {
	var keys []string
	if record.PurchaseID != "" {
		keys = append(keys, "p:"+record.PurchaseID)
	}
	if record.TxHash != "" {
		keys = append(keys, "t:"+strings.ToLower(record.TxHash))
	}
	if record.OrderID != "" {
		keys = append(keys, "o:"+record.OrderID)
	}
	keys = append(keys, fmt.Sprintf("c:%s|%d|%s",
		strings.ToLower(record.TokenKey.String()),
		record.PurchasedAt.Truncate(time.Second).Unix(),
		record.PriceGameCurrency.String(),
	))
	return keys
}
