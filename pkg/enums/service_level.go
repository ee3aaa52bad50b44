package enums

import "fmt"

// ServiceLevel identifies the carrier service selected for a shipment.
type ServiceLevel string

const (
	ServiceLevelGround            ServiceLevel = "GROUND"
	ServiceLevelExpressSaver      ServiceLevel = "EXPRESS_SAVER"
	ServiceLevelTwoDay            ServiceLevel = "2_DAY"
	ServiceLevelPriorityOvernight ServiceLevel = "PRIORITY_OVERNIGHT"
)

var validServiceLevels = []ServiceLevel{
	ServiceLevelGround,
	ServiceLevelExpressSaver,
	ServiceLevelTwoDay,
	ServiceLevelPriorityOvernight,
}

// String implements fmt.Stringer.
func (s ServiceLevel) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServiceLevel.
func (s ServiceLevel) IsValid() bool {
	for _, candidate := range validServiceLevels {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseServiceLevel converts raw input into a ServiceLevel.
func ParseServiceLevel(value string) (ServiceLevel, error) {
	for _, candidate := range validServiceLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service level %q", value)
}
