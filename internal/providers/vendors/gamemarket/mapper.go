package gamemarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lootview/wallet-portfolio/internal/domain"
)

// rawPurchase is the untrusted wire shape of a marketplace sale. The upstream
// API has renamed fields across versions and serializes prices as either
// strings or numbers, so every field is decoded leniently here and mapped to
// the strict internal domain.PurchaseRecord in one place.
type rawPurchase struct {
	ID         string `json:"id"`
	PurchaseID string `json:"purchase_id"`

	Token    string `json:"token"`
	TokenKey string `json:"token_key"`

	Buyer        string `json:"buyer"`
	BuyerAddress string `json:"buyer_address"`

	Price    *flexDecimal `json:"price"`
	PriceUSD *flexDecimal `json:"price_usd"`

	Timestamp *flexTime `json:"timestamp"`
	SoldAt    *flexTime `json:"sold_at"`

	TxHash          string `json:"tx_hash"`
	TransactionHash string `json:"transaction_hash"`

	OrderID string `json:"order_id"`
}

// Normalize maps the loose wire record onto the strict internal schema.
// Records missing an identity, token key, or purchase time are dropped rather
// than threaded through the core as partial values.
func (r *rawPurchase) Normalize() (*domain.PurchaseRecord, bool) {
	purchaseID := firstNonEmpty(r.PurchaseID, r.ID)

	tokenKey := domain.TokenKey(strings.ToLower(firstNonEmpty(r.TokenKey, r.Token)))
	if tokenKey == "" {
		return nil, false
	}

	purchasedAt := firstTime(r.Timestamp, r.SoldAt)
	if purchasedAt.IsZero() {
		return nil, false
	}

	txHash := domain.NormalizeAddress(firstNonEmpty(r.TxHash, r.TransactionHash))

	if purchaseID == "" && txHash == "" && r.OrderID == "" {
		// Nothing to identify this sale by; it cannot be deduplicated or
		// matched, so drop it
		return nil, false
	}

	record := &domain.PurchaseRecord{
		PurchaseID:   purchaseID,
		TokenKey:     tokenKey,
		BuyerAddress: domain.NormalizeAddress(firstNonEmpty(r.BuyerAddress, r.Buyer)),
		PurchasedAt:  purchasedAt.UTC(),
		TxHash:       txHash,
		OrderID:      r.OrderID,
	}

	if r.Price != nil {
		record.PriceGameCurrency = r.Price.Decimal
	}
	if r.PriceUSD != nil {
		usd := r.PriceUSD.Decimal
		record.PriceUSD = &usd
	}

	return record, true
}

// flexDecimal decodes a JSON number or a numeric string
type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	f.Decimal = d
	return nil
}

// flexTime decodes an RFC3339 string or a unix-seconds number
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var unix int64
	if err := json.Unmarshal(data, &unix); err == nil {
		f.Time = time.Unix(unix, 0)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstTime(values ...*flexTime) time.Time {
	for _, v := range values {
		if v != nil && !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}
