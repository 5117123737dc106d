package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/lootview/wallet-portfolio/internal/domain"
)

var (
	// minCostBasis is the smallest acquisition price treated as a real cost
	// basis; anything below is noise (free mints, dust)
	minCostBasis = decimal.NewFromFloat(0.000001)

	// flatDeadband keeps tiny market moves from flapping between up and down
	flatDeadband = decimal.NewFromFloat(0.03)

	// epsilon guards the spread-ratio division against a zero low bound
	epsilon = decimal.NewFromFloat(1e-9)

	spreadStrongMax = decimal.NewFromFloat(0.25)
	spreadFairMax   = decimal.NewFromFloat(0.60)
)

// ComputePosition classifies a holding against the current market reference.
// Pure function: no I/O, no clock, fully determined by its arguments.
//
// The market reference is the midpoint of the observed listing bounds, or the
// single bound when only one side was observed. No bounds means no reference.
// Data quality grades the reference by relative spread width and is only
// defined when both bounds are present.
func ComputePosition(costBasis *decimal.Decimal, listing *domain.ListingSnapshot) domain.PositionResult {
	reference, quality := marketReference(listing)
	if reference == nil {
		return domain.PositionResult{State: domain.PositionNoMarketRef}
	}

	if costBasis == nil || costBasis.LessThan(minCostBasis) {
		return domain.PositionResult{
			State:           domain.PositionNoCostBasis,
			MarketReference: reference,
			DataQuality:     quality,
		}
	}

	pnlAbsolute := reference.Sub(*costBasis)
	pnlRatio := pnlAbsolute.Div(*costBasis)

	// The deadband boundary itself is a move: |ratio| >= 0.03 leaves flat
	state := domain.PositionFlat
	if pnlRatio.Abs().GreaterThanOrEqual(flatDeadband) {
		if pnlRatio.IsPositive() {
			state = domain.PositionUp
		} else {
			state = domain.PositionDown
		}
	}

	return domain.PositionResult{
		State:           state,
		PnLRatio:        &pnlRatio,
		PnLAbsolute:     &pnlAbsolute,
		MarketReference: reference,
		DataQuality:     quality,
	}
}

func marketReference(listing *domain.ListingSnapshot) (*decimal.Decimal, *domain.DataQuality) {
	if listing == nil {
		return nil, nil
	}

	switch {
	case listing.Low != nil && listing.High != nil:
		midpoint := listing.Low.Add(*listing.High).Div(decimal.NewFromInt(2))
		if midpoint.LessThanOrEqual(epsilon) {
			return nil, nil
		}
		quality := spreadQuality(*listing.Low, *listing.High)
		return &midpoint, &quality
	case listing.Low != nil:
		if listing.Low.LessThanOrEqual(epsilon) {
			return nil, nil
		}
		return listing.Low, nil
	case listing.High != nil:
		if listing.High.LessThanOrEqual(epsilon) {
			return nil, nil
		}
		return listing.High, nil
	default:
		return nil, nil
	}
}

// spreadQuality grades the market reference by the listing spread relative to
// the low bound
func spreadQuality(low, high decimal.Decimal) domain.DataQuality {
	spreadRatio := high.Sub(low).Div(decimal.Max(low, epsilon))
	switch {
	case spreadRatio.LessThanOrEqual(spreadStrongMax):
		return domain.DataQualityStrong
	case spreadRatio.LessThanOrEqual(spreadFairMax):
		return domain.DataQualityFair
	default:
		return domain.DataQualityLimited
	}
}
