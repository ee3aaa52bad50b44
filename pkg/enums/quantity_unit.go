package enums

import "fmt"

// QuantityUnit is the measurement unit a sample lot is tracked in.
type QuantityUnit string

const (
	QuantityUnitMilliliter QuantityUnit = "ml"
	QuantityUnitLiter      QuantityUnit = "l"
	QuantityUnitMilligram  QuantityUnit = "mg"
	QuantityUnitGram       QuantityUnit = "g"
	QuantityUnitKilogram   QuantityUnit = "kg"
	QuantityUnitEach       QuantityUnit = "ea"
)

var validQuantityUnits = []QuantityUnit{
	QuantityUnitMilliliter,
	QuantityUnitLiter,
	QuantityUnitMilligram,
	QuantityUnitGram,
	QuantityUnitKilogram,
	QuantityUnitEach,
}

// String implements fmt.Stringer.
func (q QuantityUnit) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QuantityUnit.
func (q QuantityUnit) IsValid() bool {
	for _, candidate := range validQuantityUnits {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQuantityUnit converts raw input into a QuantityUnit.
func ParseQuantityUnit(value string) (QuantityUnit, error) {
	for _, candidate := range validQuantityUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quantity unit %q", value)
}
