package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/cache"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/logger"
	"github.com/lootview/wallet-portfolio/internal/providers/ethereum"
	"github.com/lootview/wallet-portfolio/internal/providers/vendors/listings"
	"github.com/lootview/wallet-portfolio/internal/providers/vendors/pricefeed"
	"github.com/lootview/wallet-portfolio/internal/store"
	"github.com/lootview/wallet-portfolio/internal/store/schema"
)

// Pipeline runs the full acquisition-cost reconciliation for wallet tokens
//
//go:generate mockgen -source=pipeline.go -destination=../mocks/pipeline.go -package=mocks -mock_names=Pipeline=MockPipeline
type Pipeline interface {
	// Evaluate runs the reconciliation for one (wallet, token) pair, writes
	// the result to the cache and appends a journal row
	Evaluate(ctx context.Context, walletAddress string, tokenKey domain.TokenKey) (*domain.Reconciliation, error)

	// EvaluateCached returns the cached reconciliation when a fresh,
	// version-compatible entry exists
	EvaluateCached(ctx context.Context, walletAddress string, tokenKey domain.TokenKey) (*domain.Reconciliation, bool)

	// EvaluatePortfolio evaluates many tokens for one wallet with bounded
	// parallelism. Per-token failures are logged and skipped so one bad token
	// never empties the portfolio.
	EvaluatePortfolio(ctx context.Context, walletAddress string, tokenKeys []domain.TokenKey) []domain.Reconciliation

	// Invalidate drops the cached reconciliation for one (wallet, token) pair
	Invalidate(ctx context.Context, walletAddress string, tokenKey domain.TokenKey) error
}

type pipeline struct {
	resolver  Resolver
	retriever Retriever
	chain     ethereum.Client
	listings  listings.Client
	pricefeed pricefeed.Client
	cache     cache.Cache
	journal   store.Store
	clock     adapter.Clock
	cacheCfg  config.CacheConfig
	workerCfg config.WorkerConfig
}

// NewPipeline wires the reconciliation stages together
func NewPipeline(
	resolver Resolver,
	retriever Retriever,
	chain ethereum.Client,
	listingsClient listings.Client,
	priceFeed pricefeed.Client,
	resultCache cache.Cache,
	journal store.Store,
	clock adapter.Clock,
	cacheCfg config.CacheConfig,
	workerCfg config.WorkerConfig,
) Pipeline {
	return &pipeline{
		resolver:  resolver,
		retriever: retriever,
		chain:     chain,
		listings:  listingsClient,
		pricefeed: priceFeed,
		cache:     resultCache,
		journal:   journal,
		clock:     clock,
		cacheCfg:  cacheCfg,
		workerCfg: workerCfg,
	}
}

// Evaluate runs the reconciliation for one (wallet, token) pair
func (p *pipeline) Evaluate(ctx context.Context, walletAddress string, tokenKey domain.TokenKey) (*domain.Reconciliation, error) {
	if !common.IsHexAddress(walletAddress) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAddress, walletAddress)
	}
	if !tokenKey.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTokenKey, tokenKey)
	}

	wallet := domain.NormalizeAddress(walletAddress)
	_, contract, tokenNumber := tokenKey.Parse()

	// The chain scan decides whether the wallet ever held the token; the
	// owner and listing lookups are independent of it, so all three run
	// concurrently
	type acquisitionResult struct {
		record *domain.AcquisitionRecord
		err    error
	}
	type ownerResult struct {
		owner string
		err   error
	}
	type listingResult struct {
		snapshot *domain.ListingSnapshot
		err      error
	}

	acquisitionCh := make(chan acquisitionResult, 1)
	ownerCh := make(chan ownerResult, 1)
	listingCh := make(chan listingResult, 1)

	go func() {
		record, err := p.resolver.ResolveAcquisition(ctx, contract, tokenNumber, wallet)
		acquisitionCh <- acquisitionResult{record: record, err: err}
	}()
	go func() {
		owner, err := p.chain.ERC721OwnerOf(ctx, contract, tokenNumber)
		ownerCh <- ownerResult{owner: owner, err: err}
	}()
	go func() {
		snapshot, err := p.listings.GetListings(ctx, contract, tokenNumber)
		listingCh <- listingResult{snapshot: snapshot, err: err}
	}()

	acquisition := <-acquisitionCh
	owner := <-ownerCh
	listing := <-listingCh

	if acquisition.err != nil {
		return nil, acquisition.err
	}

	if owner.err != nil {
		logger.WarnCtx(ctx, "owner lookup failed, matching on viewer wallet only",
			zap.String("token_key", tokenKey.String()), zap.Error(owner.err))
		owner.owner = ""
	}
	if listing.err != nil {
		logger.WarnCtx(ctx, "listing lookup failed, position will have no market reference",
			zap.String("token_key", tokenKey.String()), zap.Error(listing.err))
		listing.snapshot = nil
	}

	candidates := p.retriever.RetrieveCandidates(ctx, tokenKey, wallet, owner.owner, acquisition.record.AcquiredAt)
	match := Match(acquisition.record, candidates, wallet, owner.owner)

	var acquisitionPrice, acquisitionUSD *decimal.Decimal
	if match.Purchase != nil {
		price := match.Purchase.PriceGameCurrency
		acquisitionPrice = &price
		acquisitionUSD = p.convertToUSD(ctx, match.Purchase)
	}

	result := &domain.Reconciliation{
		WalletAddress:    wallet,
		TokenKey:         tokenKey,
		Acquisition:      acquisition.record,
		Match:            match,
		AcquisitionPrice: acquisitionPrice,
		AcquisitionUSD:   acquisitionUSD,
		Listing:          listing.snapshot,
		Position:         ComputePosition(acquisitionPrice, listing.snapshot),
		EvaluatedAt:      p.clock.Now().UTC(),
	}

	p.appendJournal(ctx, result)

	cacheKey := cache.ReconciliationKey(wallet, tokenKey)
	if err := p.cache.Set(ctx, cacheKey, p.cacheCfg.SchemaVersion, result, p.cacheCfg.TTL); err != nil {
		logger.WarnCtx(ctx, "failed to cache reconciliation",
			zap.String("cache_key", cacheKey), zap.Error(err))
	}

	return result, nil
}

// EvaluateCached returns the cached reconciliation when a fresh entry exists
func (p *pipeline) EvaluateCached(ctx context.Context, walletAddress string, tokenKey domain.TokenKey) (*domain.Reconciliation, bool) {
	wallet := domain.NormalizeAddress(walletAddress)
	cacheKey := cache.ReconciliationKey(wallet, tokenKey)

	var result domain.Reconciliation
	hit, reason, err := p.cache.Get(ctx, cacheKey, p.cacheCfg.SchemaVersion, &result)
	if err != nil {
		logger.WarnCtx(ctx, "cache read failed, treating as miss",
			zap.String("cache_key", cacheKey), zap.Error(err))
		return nil, false
	}
	if !hit {
		if reason != cache.MissNotFound {
			logger.InfoCtx(ctx, "cache miss",
				zap.String("cache_key", cacheKey), zap.String("reason", string(reason)))
		}
		return nil, false
	}

	return &result, true
}

// EvaluatePortfolio evaluates many tokens for one wallet with bounded
// parallelism
func (p *pipeline) EvaluatePortfolio(ctx context.Context, walletAddress string, tokenKeys []domain.TokenKey) []domain.Reconciliation {
	width := p.workerCfg.BatchWidth
	if width <= 0 {
		width = 4
	}

	pool := pond.NewResultPool[*domain.Reconciliation](width)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, tokenKey := range tokenKeys {
		tk := tokenKey
		group.SubmitErr(func() (*domain.Reconciliation, error) {
			if cached, ok := p.EvaluateCached(ctx, walletAddress, tk); ok {
				return cached, nil
			}
			return p.Evaluate(ctx, walletAddress, tk)
		})
	}

	evaluated, err := group.Wait()
	if err != nil {
		logger.WarnCtx(ctx, "portfolio evaluation had failures",
			zap.String("wallet", walletAddress), zap.Error(err))
	}

	results := make([]domain.Reconciliation, 0, len(evaluated))
	for _, r := range evaluated {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// Invalidate drops the cached reconciliation for one (wallet, token) pair
func (p *pipeline) Invalidate(ctx context.Context, walletAddress string, tokenKey domain.TokenKey) error {
	return p.cache.Remove(ctx, cache.ReconciliationKey(domain.NormalizeAddress(walletAddress), tokenKey))
}

// convertToUSD enriches a matched purchase with its display-currency price at
// purchase time. Best-effort: the feed may be unconfigured or sparse.
func (p *pipeline) convertToUSD(ctx context.Context, purchase *domain.PurchaseRecord) *decimal.Decimal {
	if purchase.PriceUSD != nil {
		return purchase.PriceUSD
	}

	rate, err := p.pricefeed.GetHistoricalPrice(ctx, purchase.PurchasedAt)
	if err != nil {
		logger.WarnCtx(ctx, "historical price lookup failed",
			zap.String("purchase_id", purchase.PurchaseID), zap.Error(err))
		return nil
	}
	if rate == nil {
		return nil
	}

	usd := purchase.PriceGameCurrency.Mul(*rate)
	return &usd
}

// appendJournal records the reconciliation in the audit journal. Journal
// failures never fail the evaluation.
func (p *pipeline) appendJournal(ctx context.Context, result *domain.Reconciliation) {
	if p.journal == nil {
		return
	}

	entry := &schema.ReconciliationJournal{
		ID:            ulid.Make().String(),
		WalletAddress: result.WalletAddress,
		TokenKey:      result.TokenKey.String(),
		MatchMethod:   string(result.Match.Method),
		PositionState: string(result.Position.State),
		EvaluatedAt:   result.EvaluatedAt,
	}

	if result.Acquisition != nil {
		entry.AcquisitionKind = string(result.Acquisition.Kind)
		entry.AcquisitionTx = result.Acquisition.TxHash
		entry.GapCount = len(result.Acquisition.Gaps)
	} else {
		entry.AcquisitionKind = string(domain.AcquisitionKindUnknown)
	}

	if result.Match.Purchase != nil {
		entry.PurchaseID = result.Match.Purchase.PurchaseID
		entry.PriceGameCurrency = result.Match.Purchase.PriceGameCurrency.String()
	}
	if result.AcquisitionUSD != nil {
		usd := result.AcquisitionUSD.String()
		entry.PriceUSD = &usd
	}
	if result.Position.DataQuality != nil {
		quality := string(*result.Position.DataQuality)
		entry.DataQuality = &quality
	}
	if result.Listing != nil {
		if meta, err := json.Marshal(result.Listing); err == nil {
			entry.Meta = datatypes.JSON(meta)
		}
	}

	if err := p.journal.AppendReconciliation(ctx, entry); err != nil {
		logger.WarnCtx(ctx, "failed to append reconciliation journal entry",
			zap.String("token_key", result.TokenKey.String()), zap.Error(err))
	}
}
