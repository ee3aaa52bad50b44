package shipments

import (
	"github.com/shopspring/decimal"
)

// DefaultHazmatThreshold is the total quantity at or above which a shipment
// must carry a hazmat declaration. The comparison is unit-naive: quantities
// are summed as declared, whatever their unit.
var DefaultHazmatThreshold = decimal.NewFromInt(30)

// HazmatEvaluator decides whether a set of requested quantities makes a
// shipment hazmat. The decision is deterministic and computed server-side;
// client-provided hazmat flags are ignored.
type HazmatEvaluator struct {
	threshold decimal.Decimal
}

// NewHazmatEvaluator builds an evaluator for the given threshold. Thresholds
// at or below zero fall back to the default.
func NewHazmatEvaluator(threshold decimal.Decimal) *HazmatEvaluator {
	if !threshold.IsPositive() {
		threshold = DefaultHazmatThreshold
	}
	return &HazmatEvaluator{threshold: threshold}
}

// IsHazmat reports whether the summed quantities reach the threshold.
// The boundary is inclusive: a total exactly at the threshold is hazmat.
func (h *HazmatEvaluator) IsHazmat(quantities []decimal.Decimal) bool {
	total := decimal.Zero
	for _, q := range quantities {
		total = total.Add(q)
	}
	return total.GreaterThanOrEqual(h.threshold)
}

// Threshold exposes the configured threshold.
func (h *HazmatEvaluator) Threshold() decimal.Decimal {
	return h.threshold
}
