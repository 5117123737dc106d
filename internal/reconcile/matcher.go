package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/lootview/wallet-portfolio/internal/domain"
)

// matchWindow is the time window around the on-chain acquisition within
// which a marketplace purchase is considered the same event
const matchWindow = 10 * time.Minute

// Match selects at most one authoritative purchase record for an on-chain
// acquisition. Pure and deterministic: identical inputs always produce the
// same result regardless of candidate order.
//
// Priority 1: a candidate whose transaction hash equals the acquisition's
// wins immediately. Priority 2: candidates within ±10 minutes of the
// acquisition, tie-broken by (buyer identity matches viewer or owner,
// smallest time distance, purchase ID).
func Match(acquisition *domain.AcquisitionRecord, candidates []domain.PurchaseRecord, viewerWallet, currentOwner string) domain.MatchResult {
	if acquisition == nil {
		return domain.MatchResult{Method: domain.MatchMethodNone}
	}

	// Work on a sorted copy so iteration order never leaks into the result
	sorted := make([]domain.PurchaseRecord, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PurchaseID < sorted[j].PurchaseID
	})

	acquisitionTx := strings.ToLower(acquisition.TxHash)
	if acquisitionTx != "" {
		for i := range sorted {
			if sorted[i].TxHash != "" && strings.ToLower(sorted[i].TxHash) == acquisitionTx {
				matched := sorted[i]
				return domain.MatchResult{Purchase: &matched, Method: domain.MatchMethodExactTx}
			}
		}
	}

	type scored struct {
		record        domain.PurchaseRecord
		identityMatch bool
		timeDistance  int64
	}

	var inWindow []scored
	for i := range sorted {
		distance := sorted[i].PurchasedAt.Sub(acquisition.AcquiredAt)
		if distance < 0 {
			distance = -distance
		}
		if distance > matchWindow {
			continue
		}
		inWindow = append(inWindow, scored{
			record: sorted[i],
			identityMatch: domain.SameAddress(sorted[i].BuyerAddress, viewerWallet) ||
				domain.SameAddress(sorted[i].BuyerAddress, currentOwner),
			timeDistance: int64(distance),
		})
	}

	if len(inWindow) == 0 {
		return domain.MatchResult{Method: domain.MatchMethodNone}
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		if inWindow[i].identityMatch != inWindow[j].identityMatch {
			return inWindow[i].identityMatch
		}
		if inWindow[i].timeDistance != inWindow[j].timeDistance {
			return inWindow[i].timeDistance < inWindow[j].timeDistance
		}
		return inWindow[i].record.PurchaseID < inWindow[j].record.PurchaseID
	})

	matched := inWindow[0].record
	return domain.MatchResult{Purchase: &matched, Method: domain.MatchMethodTimeWindow}
}
