package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet || chain == ChainEthereumSepolia
}

// TokenKey is the composite identifier used to correlate on-chain tokens with
// off-chain purchase records, in format: chain:contractAddress:tokenNumber
// (e.g., "eip155:1:0xabc...:1234"). The contract address is lowercased.
type TokenKey string

var tokenNumberRegexp = regexp.MustCompile(`^\d+$`)

// NewTokenKey builds a normalized token key
func NewTokenKey(chain Chain, contractAddress string, tokenNumber string) TokenKey {
	return TokenKey(fmt.Sprintf("%s:%s:%s", chain, strings.ToLower(contractAddress), tokenNumber))
}

func (t TokenKey) String() string {
	return string(t)
}

// Parse splits the token key into chain, contract address and token number
func (t TokenKey) Parse() (Chain, string, string) {
	parts := strings.Split(string(t), ":")
	if len(parts) != 4 {
		return "", "", ""
	}
	// CAIP-2 chain IDs contain a colon themselves (eip155:1)
	return Chain(parts[0] + ":" + parts[1]), parts[2], parts[3]
}

// Valid checks whether the token key is well formed
func (t TokenKey) Valid() bool {
	chain, contract, tokenNumber := t.Parse()
	if !IsValidChain(chain) {
		return false
	}
	if !common.IsHexAddress(contract) {
		return false
	}
	if contract != strings.ToLower(contract) {
		return false
	}
	return tokenNumberRegexp.MatchString(tokenNumber)
}

// NormalizeAddress lowercases an EVM address for comparison
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return a != "" && NormalizeAddress(a) == NormalizeAddress(b)
}

// IsZeroAddress reports whether the address is the canonical zero/burn address
func IsZeroAddress(address string) bool {
	return NormalizeAddress(address) == ETHEREUM_ZERO_ADDRESS
}

// TransferEvent represents a single ownership-transfer event for a token,
// ordered by (BlockNumber, LogIndex) ascending over chain history.
type TransferEvent struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	TokenNumber string    `json:"token_number"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	TxHash      string    `json:"tx_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// AcquisitionKind classifies how a wallet acquired a token
type AcquisitionKind string

const (
	AcquisitionKindMint     AcquisitionKind = "mint"
	AcquisitionKindTransfer AcquisitionKind = "transfer"
	AcquisitionKindUnknown  AcquisitionKind = "unknown"
)

// AcquisitionRecord is derived from the first incoming transfer of a token to
// a wallet. Recomputed on every resolver invocation, never cached on its own.
//
// Known limitation: if a token left the wallet and returned later, the very
// first incoming transfer is still used as the acquisition.
type AcquisitionRecord struct {
	AcquiredAt  time.Time       `json:"acquired_at"`
	FromAddress string          `json:"from_address"`
	TxHash      string          `json:"tx_hash"`
	Kind        AcquisitionKind `json:"kind"`

	// Gaps lists block ranges that could not be queried even after maximum
	// chunk subdivision. Surfaced for diagnostics only.
	Gaps []BlockRange `json:"gaps,omitempty"`
}

// BlockRange is an inclusive block-height range
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// PurchaseRecord is a normalized off-chain marketplace purchase. Sourced from
// an untrusted external ledger: duplicates across query strategies are
// expected and removed before matching.
type PurchaseRecord struct {
	PurchaseID        string           `json:"purchase_id"`
	TokenKey          TokenKey         `json:"token_key"`
	BuyerAddress      string           `json:"buyer_address"`
	PriceGameCurrency decimal.Decimal  `json:"price_game_currency"`
	PriceUSD          *decimal.Decimal `json:"price_usd,omitempty"`
	PurchasedAt       time.Time        `json:"purchased_at"`
	TxHash            string           `json:"tx_hash,omitempty"`
	OrderID           string           `json:"order_id,omitempty"`
}

// MatchMethod identifies how a purchase record was correlated with an
// on-chain acquisition
type MatchMethod string

const (
	MatchMethodExactTx    MatchMethod = "exact_tx"
	MatchMethodTimeWindow MatchMethod = "time_window"
	MatchMethodNone       MatchMethod = "none"
)

// MatchResult holds at most one authoritative purchase for a (wallet, token)
// reconciliation
type MatchResult struct {
	Purchase *PurchaseRecord `json:"purchase,omitempty"`
	Method   MatchMethod     `json:"method"`
}

// ListingSnapshot holds the sparse listing bounds observed for a token.
// Either bound may be absent; both absent means no market reference is
// computable.
type ListingSnapshot struct {
	Low        *decimal.Decimal `json:"low,omitempty"`
	High       *decimal.Decimal `json:"high,omitempty"`
	ObservedAt time.Time        `json:"observed_at"`
}

// PositionState classifies a position against its market reference
type PositionState string

const (
	PositionUp          PositionState = "up"
	PositionDown        PositionState = "down"
	PositionFlat        PositionState = "flat"
	PositionNoCostBasis PositionState = "no_cost_basis"
	PositionNoMarketRef PositionState = "no_market_ref"
)

// DataQuality is a heuristic confidence label on the market reference, based
// solely on how wide the observed listing spread is
type DataQuality string

const (
	DataQualityStrong  DataQuality = "strong"
	DataQualityFair    DataQuality = "fair"
	DataQualityLimited DataQuality = "limited"
)

// PositionResult is the pure output of the position calculator. Recomputed on
// every evaluation and never persisted independently of its inputs.
type PositionResult struct {
	State           PositionState    `json:"state"`
	PnLRatio        *decimal.Decimal `json:"pnl_ratio,omitempty"`
	PnLAbsolute     *decimal.Decimal `json:"pnl_absolute,omitempty"`
	MarketReference *decimal.Decimal `json:"market_reference,omitempty"`
	DataQuality     *DataQuality     `json:"data_quality,omitempty"`
}

// Reconciliation is the full cached output of one pipeline run for a
// (wallet, token) pair
type Reconciliation struct {
	WalletAddress    string             `json:"wallet_address"`
	TokenKey         TokenKey           `json:"token_key"`
	Acquisition      *AcquisitionRecord `json:"acquisition,omitempty"`
	Match            MatchResult        `json:"match"`
	AcquisitionPrice *decimal.Decimal   `json:"acquisition_price,omitempty"`
	AcquisitionUSD   *decimal.Decimal   `json:"acquisition_usd,omitempty"`
	Listing          *ListingSnapshot   `json:"listing,omitempty"`
	Position         PositionResult     `json:"position"`
	EvaluatedAt      time.Time          `json:"evaluated_at"`
}
