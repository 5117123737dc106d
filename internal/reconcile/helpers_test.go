package reconcile

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/logger"
	"github.com/lootview/wallet-portfolio/internal/providers/ethereum"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeChain implements ethereum.Client for tests
type fakeChain struct {
	history    *ethereum.TransferHistory
	historyErr error
	owner      string
	ownerErr   error
}

func (f *fakeChain) GetTokenTransferEvents(ctx context.Context, contractAddress, tokenNumber string) (*ethereum.TransferHistory, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeChain) ERC721OwnerOf(ctx context.Context, contractAddress, tokenNumber string) (string, error) {
	return f.owner, f.ownerErr
}

func (f *fakeChain) Close() {}

// fakeMarket implements gamemarket.Client for tests. Lookups run
// concurrently, so call bookkeeping is guarded.
type fakeMarket struct {
	byToken     []domain.PurchaseRecord
	byTokenErr  error
	byWallet    map[string][]domain.PurchaseRecord
	byWalletErr error

	mu            sync.Mutex
	byTokenCalls  int
	byWalletCalls []string
}

func (f *fakeMarket) GetPurchasesByToken(ctx context.Context, tokenKey domain.TokenKey) ([]domain.PurchaseRecord, error) {
	f.mu.Lock()
	f.byTokenCalls++
	f.mu.Unlock()
	if f.byTokenErr != nil {
		return nil, f.byTokenErr
	}
	return f.byToken, nil
}

func (f *fakeMarket) GetPurchasesByWallet(ctx context.Context, wallet string, from, to time.Time, limit int) ([]domain.PurchaseRecord, error) {
	f.mu.Lock()
	f.byWalletCalls = append(f.byWalletCalls, wallet)
	f.mu.Unlock()
	if f.byWalletErr != nil {
		return nil, f.byWalletErr
	}
	return f.byWallet[wallet], nil
}

// fakeListings implements listings.Client for tests
type fakeListings struct {
	snapshot *domain.ListingSnapshot
	err      error
}

func (f *fakeListings) GetListings(ctx context.Context, contractAddress, tokenNumber string) (*domain.ListingSnapshot, error) {
	return f.snapshot, f.err
}

// fakePriceFeed implements pricefeed.Client for tests
type fakePriceFeed struct {
	rate *decimal.Decimal
	err  error
}

func (f *fakePriceFeed) GetHistoricalPrice(ctx context.Context, asOf time.Time) (*decimal.Decimal, error) {
	return f.rate, f.err
}

// fixedClock implements adapter.Clock with a controllable time
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time                         { return c.now }
func (c *fixedClock) Since(t time.Time) time.Duration       { return c.now.Sub(t) }
func (c *fixedClock) Unix(sec int64, nsec int64) time.Time  { return time.Unix(sec, nsec) }
func (c *fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
