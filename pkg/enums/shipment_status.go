package enums

import "fmt"

// ShipmentStatus is the closed set of shipment lifecycle states. Legacy rows
// written by the previous system used "pending" and "in_progress"; those are
// accepted on parse and normalized to their canonical values, and never
// written back.
type ShipmentStatus string

const (
	ShipmentStatusInitiated  ShipmentStatus = "initiated"
	ShipmentStatusProcessing ShipmentStatus = "processing"
	ShipmentStatusShipped    ShipmentStatus = "shipped"
	ShipmentStatusInTransit  ShipmentStatus = "in_transit"
	ShipmentStatusDelivered  ShipmentStatus = "delivered"
	ShipmentStatusCancelled  ShipmentStatus = "cancelled"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusInitiated,
	ShipmentStatusProcessing,
	ShipmentStatusShipped,
	ShipmentStatusInTransit,
	ShipmentStatusDelivered,
	ShipmentStatusCancelled,
}

var legacyShipmentStatuses = map[string]ShipmentStatus{
	"pending":     ShipmentStatusInitiated,
	"in_progress": ShipmentStatusProcessing,
}

// shipmentStatusRank orders the forward progression of a shipment. Cancelled
// sits outside the ordering; it is reachable from any non-terminal state.
var shipmentStatusRank = map[ShipmentStatus]int{
	ShipmentStatusInitiated:  0,
	ShipmentStatusProcessing: 1,
	ShipmentStatusShipped:    2,
	ShipmentStatusInTransit:  3,
	ShipmentStatusDelivered:  4,
}

// String implements fmt.Stringer.
func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known canonical ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	for _, candidate := range validShipmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentStatusDelivered || s == ShipmentStatusCancelled
}

// Rank returns the position of the status in the forward ordering
// initiated < processing < shipped < in_transit < delivered, and false for
// cancelled or unknown values.
func (s ShipmentStatus) Rank() (int, bool) {
	rank, ok := shipmentStatusRank[s]
	return rank, ok
}

// Before reports whether s precedes other in the forward ordering. Statuses
// outside the ordering never precede anything.
func (s ShipmentStatus) Before(other ShipmentStatus) bool {
	left, ok := s.Rank()
	if !ok {
		return false
	}
	right, ok := other.Rank()
	if !ok {
		return false
	}
	return left < right
}

// ParseShipmentStatus converts raw input, including legacy aliases, into a
// canonical ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	if canonical, ok := legacyShipmentStatuses[value]; ok {
		return canonical, nil
	}
	for _, candidate := range validShipmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}
