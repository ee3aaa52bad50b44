package enums

import "fmt"

// PackingGroup is the UN packing group assigned on a hazmat declaration.
// I is high danger, III is low.
type PackingGroup string

const (
	PackingGroupI   PackingGroup = "I"
	PackingGroupII  PackingGroup = "II"
	PackingGroupIII PackingGroup = "III"
)

var validPackingGroups = []PackingGroup{
	PackingGroupI,
	PackingGroupII,
	PackingGroupIII,
}

// String implements fmt.Stringer.
func (p PackingGroup) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PackingGroup.
func (p PackingGroup) IsValid() bool {
	for _, candidate := range validPackingGroups {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePackingGroup converts raw input into a PackingGroup.
func ParsePackingGroup(value string) (PackingGroup, error) {
	for _, candidate := range validPackingGroups {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid packing group %q", value)
}
