package schema

import (
	"time"

	"gorm.io/datatypes"
)

// ReconciliationJournal represents the reconciliation_journal table - an
// append-only audit log of every reconciliation the pipeline produced. Each
// row records how the acquisition cost was established (or why it could not
// be) so support can explain any number a user sees.
type ReconciliationJournal struct {
	// ID is a ULID, lexically ordered by creation time
	ID string `gorm:"column:id;primaryKey;type:text"`
	// WalletAddress is the viewing wallet, lowercased
	WalletAddress string `gorm:"column:wallet_address;not null;index;type:text"`
	// TokenKey is the chain:contract:tokenNumber composite identifier
	TokenKey string `gorm:"column:token_key;not null;index;type:text"`
	// AcquisitionKind is mint, transfer or unknown
	AcquisitionKind string `gorm:"column:acquisition_kind;not null;type:text"`
	// AcquisitionTx is the transaction hash of the first incoming transfer
	AcquisitionTx string `gorm:"column:acquisition_tx;type:text"`
	// MatchMethod records how the purchase was correlated (exact_tx, time_window, none)
	MatchMethod string `gorm:"column:match_method;not null;type:text"`
	// PurchaseID is the matched marketplace purchase, empty when unmatched
	PurchaseID string `gorm:"column:purchase_id;type:text"`
	// PriceGameCurrency is the acquisition price in game currency, empty when unmatched
	PriceGameCurrency string `gorm:"column:price_game_currency;type:text"`
	// PriceUSD is the display-currency conversion at purchase time, when available
	PriceUSD *string `gorm:"column:price_usd;type:text"`
	// PositionState is the computed position classification
	PositionState string `gorm:"column:position_state;not null;type:text"`
	// DataQuality grades the market reference, when one existed
	DataQuality *string `gorm:"column:data_quality;type:text"`
	// GapCount is the number of unreadable block ranges in the transfer scan
	GapCount int `gorm:"column:gap_count;not null;default:0"`
	// EvaluatedAt is when the pipeline produced this result
	EvaluatedAt time.Time `gorm:"column:evaluated_at;not null;index;type:timestamptz"`
	// Meta carries additional context as JSON (listing bounds, match distance)
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb"`
}

// TableName specifies the table name for the ReconciliationJournal model
func (ReconciliationJournal) TableName() string {
	return "reconciliation_journal"
}
