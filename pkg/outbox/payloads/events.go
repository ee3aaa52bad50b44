package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
)

// ShipmentRequestedEvent signals a newly initiated shipment request.
type ShipmentRequestedEvent struct {
	ShipmentID  uuid.UUID `json:"shipment_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
	LotIDs      []string  `json:"lot_ids"`
	IsHazmat    bool      `json:"is_hazmat"`
}

// ShipmentStatusChangedEvent is emitted on every status transition.
type ShipmentStatusChangedEvent struct {
	ShipmentID uuid.UUID            `json:"shipment_id"`
	From       enums.ShipmentStatus `json:"from"`
	To         enums.ShipmentStatus `json:"to"`
	ChangedAt  time.Time            `json:"changed_at"`
}

// ShipmentShippedEvent surfaces label details once a carrier label exists.
type ShipmentShippedEvent struct {
	ShipmentID        uuid.UUID        `json:"shipment_id"`
	TrackingNumber    string           `json:"tracking_number"`
	ShippingCost      decimal.Decimal  `json:"shipping_cost"`
	ServiceLevel      string           `json:"service_level"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
	Supplies          []SupplyUsageRef `json:"supplies,omitempty"`
}

// SupplyUsageRef records a packing supply consumed during label generation.
type SupplyUsageRef struct {
	SupplyItemID uuid.UUID `json:"supply_item_id"`
	Quantity     int       `json:"quantity"`
}

// ShipmentCancelledEvent is emitted when a shipment is cancelled pre-delivery.
type ShipmentCancelledEvent struct {
	ShipmentID  uuid.UUID            `json:"shipment_id"`
	FromStatus  enums.ShipmentStatus `json:"from_status"`
	CancelledAt time.Time            `json:"cancelled_at"`
	Reason      string               `json:"reason,omitempty"`
}

// NotificationEmailQueuedEvent tells the notification worker to send an email.
type NotificationEmailQueuedEvent struct {
	ShipmentID uuid.UUID         `json:"shipment_id"`
	Template   string            `json:"template"`
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject"`
	Variables  map[string]string `json:"variables,omitempty"`
}
