package shipments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestHazmatBelowThreshold(t *testing.T) {
	eval := NewHazmatEvaluator(decimal.Zero)

	assert.False(t, eval.IsHazmat([]decimal.Decimal{d("10"), d("15")}))
	assert.False(t, eval.IsHazmat([]decimal.Decimal{d("29.999")}))
	assert.False(t, eval.IsHazmat(nil))
}

func TestHazmatAtThresholdInclusive(t *testing.T) {
	eval := NewHazmatEvaluator(decimal.Zero)

	assert.True(t, eval.IsHazmat([]decimal.Decimal{d("30")}))
	assert.True(t, eval.IsHazmat([]decimal.Decimal{d("10"), d("20")}))
}

func TestHazmatAboveThreshold(t *testing.T) {
	eval := NewHazmatEvaluator(decimal.Zero)

	assert.True(t, eval.IsHazmat([]decimal.Decimal{d("10"), d("25")}))
}

func TestHazmatCustomThreshold(t *testing.T) {
	eval := NewHazmatEvaluator(d("50"))

	assert.False(t, eval.IsHazmat([]decimal.Decimal{d("30")}))
	assert.True(t, eval.IsHazmat([]decimal.Decimal{d("50")}))
	assert.Equal(t, "50", eval.Threshold().String())
}

func TestHazmatZeroThresholdFallsBack(t *testing.T) {
	eval := NewHazmatEvaluator(decimal.Zero)

	assert.Equal(t, DefaultHazmatThreshold.String(), eval.Threshold().String())
}
